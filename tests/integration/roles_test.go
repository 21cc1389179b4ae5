//go:build integration

package integration

import (
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuapuikia/dispatch/internal/testutil"
)

func TestAssignRole_NewAssignment(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Fresh liaison"))

	liaison := uniqueEmail("liaison")
	result := assignRole(t, client, incident.ID, "liaison", liaison)

	assert.Equal(t, incident.ID, result.IncidentID)
	assert.Equal(t, "liaison", result.Role)
	assert.Equal(t, liaison, result.AssigneeEmail)
	assert.True(t, result.Changed)
	assert.Empty(t, result.PreviousAssignee)

	roles := activeRoles(t, client, incident.ID)
	holder := activeHolder(roles, "liaison")
	require.NotNil(t, holder)
	assert.Equal(t, liaison, holder.AssigneeEmail)
	assert.True(t, holder.Active)
	assert.Nil(t, holder.RenouncedAt)
}

func TestAssignRole_Handover(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Commander handover"))

	relief := uniqueEmail("relief")
	result := assignRole(t, client, incident.ID, "incident_commander", relief)

	assert.True(t, result.Changed)
	assert.Equal(t, userEmail, result.PreviousAssignee)

	roles := activeRoles(t, client, incident.ID)
	commander := activeHolder(roles, "incident_commander")
	require.NotNil(t, commander)
	assert.Equal(t, relief, commander.AssigneeEmail)

	// One active holder per role, always.
	count := 0
	for _, r := range roles {
		if r.Role == "incident_commander" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAssignRole_SameAssigneeIsNoOp(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Scribe twice"))

	scribe := uniqueEmail("scribe")
	first := assignRole(t, client, incident.ID, "scribe", scribe)
	assert.True(t, first.Changed)

	before := roleHistory(t, client, incident.ID)

	second := assignRole(t, client, incident.ID, "scribe", scribe)
	assert.False(t, second.Changed)
	assert.Empty(t, second.PreviousAssignee)

	// A no-op leaves no trace in the history.
	after := roleHistory(t, client, incident.ID)
	assert.Len(t, after, len(before))
}

func TestAssignRole_AllRoleTypes(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Full staffing"))

	for _, role := range []string{"liaison", "scribe", "observer"} {
		result := assignRole(t, client, incident.ID, role, uniqueEmail(role))
		assert.True(t, result.Changed)
	}

	roles := activeRoles(t, client, incident.ID)
	assert.Len(t, roles, 5)
	for _, role := range []string{"incident_commander", "reporter", "liaison", "scribe", "observer"} {
		assert.NotNil(t, activeHolder(roles, role), "missing active holder for %s", role)
	}
}

func TestAssignRole_InvalidRole(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("No janitors"))

	resp, err := client.POST("/api/v1/incidents/"+incident.ID+"/roles", map[string]string{
		"role":           "janitor",
		"assignee_email": uniqueEmail("janitor"),
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssignRole_Validation(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Bad assignments"))

	tests := []struct {
		name    string
		payload map[string]string
	}{
		{"missing role", map[string]string{"assignee_email": uniqueEmail("norole")}},
		{"missing assignee", map[string]string{"role": "liaison"}},
		{"malformed assignee", map[string]string{"role": "liaison", "assignee_email": "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.POST("/api/v1/incidents/"+incident.ID+"/roles", tt.payload)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAssignRole_UnknownIncident(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	resp, err := client.POST("/api/v1/incidents/"+uuid.NewString()+"/roles", map[string]string{
		"role":           "liaison",
		"assignee_email": uniqueEmail("nowhere"),
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoleHistory_RecordsHandovers(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("History check"))

	relief := uniqueEmail("relief")
	assignRole(t, client, incident.ID, "incident_commander", relief)

	history := roleHistory(t, client, incident.ID)
	require.Len(t, history, 3)

	// Newest first: the handover row leads.
	newest := history[0]
	assert.Equal(t, "incident_commander", newest.Role)
	assert.Equal(t, relief, newest.AssigneeEmail)
	assert.True(t, newest.Active)

	// The superseded row stays behind with the renouncement stamped.
	var superseded *roleData
	for i := range history {
		if history[i].Role == "incident_commander" && !history[i].Active {
			superseded = &history[i]
		}
	}
	require.NotNil(t, superseded)
	assert.Equal(t, userEmail, superseded.AssigneeEmail)
	require.NotNil(t, superseded.RenouncedAt)
	assert.Equal(t, userEmail, superseded.RenouncedBy)
}

func TestRoleHistory_UnknownIncidentIsEmpty(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	history := roleHistory(t, client, uuid.NewString())
	assert.Empty(t, history)
}

func TestListRoles_UnknownIncidentIsEmpty(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	roles := activeRoles(t, client, uuid.NewString())
	assert.Empty(t, roles)
}

func TestAssignRole_ConcurrentHandovers(t *testing.T) {
	setupClient := newTestClient(t)
	setupClient.LoginAsUser(t)

	incident := createTestIncident(t, setupClient, uniqueTitle("Race for command"))

	contenders := []string{uniqueEmail("alpha"), uniqueEmail("bravo")}
	statuses := make([]int, len(contenders))

	var wg sync.WaitGroup
	for i, email := range contenders {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()

			client := testutil.NewClient(testServer.URL)
			client.Token = setupClient.Token

			resp, err := client.POST("/api/v1/incidents/"+incident.ID+"/roles", map[string]string{
				"role":           "incident_commander",
				"assignee_email": email,
			})
			if err != nil {
				t.Errorf("concurrent assign: %v", err)
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i, email)
	}
	wg.Wait()

	// The row lock serializes the handovers: each request either wins its
	// turn or loses the race with a conflict. Never anything else.
	succeeded := 0
	for _, status := range statuses {
		switch status {
		case http.StatusOK:
			succeeded++
		case http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d", status)
		}
	}
	require.GreaterOrEqual(t, succeeded, 1)

	// Exactly one commander stands when the dust settles.
	roles := activeRoles(t, setupClient, incident.ID)
	count := 0
	var winner string
	for _, r := range roles {
		if r.Role == "incident_commander" {
			count++
			winner = r.AssigneeEmail
		}
	}
	assert.Equal(t, 1, count)
	assert.Contains(t, contenders, winner)
}
