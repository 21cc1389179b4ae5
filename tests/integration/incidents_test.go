//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuapuikia/dispatch/internal/testutil"
)

func TestCreateIncident(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	title := uniqueTitle("Database latency")
	incident := createTestIncident(t, client, title, withDescription("p99 above 2s"))

	assert.Equal(t, title, incident.Title)
	assert.Equal(t, "p99 above 2s", incident.Description)
	assert.Equal(t, "active", incident.Status)
	assert.Equal(t, userEmail, incident.CreatedBy)
	assert.False(t, incident.CreatedAt.IsZero())
	assert.Nil(t, incident.ClosedAt)

	fetched := getIncident(t, client, incident.ID)
	assert.Equal(t, incident.ID, fetched.ID)
	assert.Equal(t, title, fetched.Title)
}

func TestCreateIncident_SeatsDefaultRoles(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Default roles"))

	roles := activeRoles(t, client, incident.ID)
	require.Len(t, roles, 2)

	commander := activeHolder(roles, "incident_commander")
	require.NotNil(t, commander)
	assert.Equal(t, userEmail, commander.AssigneeEmail)
	assert.True(t, commander.Active)

	reporter := activeHolder(roles, "reporter")
	require.NotNil(t, reporter)
	assert.Equal(t, userEmail, reporter.AssigneeEmail)
}

func TestCreateIncident_ExplicitRoles(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	commanderEmail := uniqueEmail("cmdr")
	reporterEmail := uniqueEmail("rprt")

	incident := createTestIncident(t, client, uniqueTitle("Explicit roles"),
		withCommander(commanderEmail),
		withReporter(reporterEmail),
	)

	roles := activeRoles(t, client, incident.ID)
	require.Len(t, roles, 2)

	commander := activeHolder(roles, "incident_commander")
	require.NotNil(t, commander)
	assert.Equal(t, commanderEmail, commander.AssigneeEmail)

	reporter := activeHolder(roles, "reporter")
	require.NotNil(t, reporter)
	assert.Equal(t, reporterEmail, reporter.AssigneeEmail)
}

func TestCreateIncident_CommanderDefaultsToReporter(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	reporterEmail := uniqueEmail("lead")
	incident := createTestIncident(t, client, uniqueTitle("Commander default"),
		withReporter(reporterEmail),
	)

	roles := activeRoles(t, client, incident.ID)
	commander := activeHolder(roles, "incident_commander")
	require.NotNil(t, commander)
	assert.Equal(t, reporterEmail, commander.AssigneeEmail)
}

func TestCreateIncident_ClosedOnArrival(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Retroactive"),
		withStatus("closed"),
	)

	assert.Equal(t, "closed", incident.Status)
	require.NotNil(t, incident.ClosedAt)
}

func TestCreateIncident_Validation(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	longTitle := make([]byte, 256)
	for i := range longTitle {
		longTitle[i] = 'x'
	}

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing title", map[string]interface{}{"description": "no title"}},
		{"empty title", map[string]interface{}{"title": ""}},
		{"title too long", map[string]interface{}{"title": string(longTitle)}},
		{"bad status", map[string]interface{}{"title": "t", "status": "exploded"}},
		{"bad commander email", map[string]interface{}{"title": "t", "commander_email": "nope"}},
		{"bad reporter email", map[string]interface{}{"title": "t", "reporter_email": "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.POST("/api/v1/incidents", tt.payload)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCreateIncident_RequiresAuth(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/incidents", map[string]string{"title": "anonymous"})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetIncident_NotFound(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	resp, err := client.GET("/api/v1/incidents/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateIncident_Fields(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Before"))

	newTitle := uniqueTitle("After")
	updated := updateIncident(t, client, incident.ID, map[string]interface{}{
		"title":       newTitle,
		"description": "now mitigated",
	})

	assert.Equal(t, newTitle, updated.Title)
	assert.Equal(t, "now mitigated", updated.Description)
	assert.Equal(t, "active", updated.Status)
	assert.False(t, updated.UpdatedAt.Before(incident.UpdatedAt))

	fetched := getIncident(t, client, incident.ID)
	assert.Equal(t, newTitle, fetched.Title)
}

func TestUpdateIncident_PartialKeepsOtherFields(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	title := uniqueTitle("Partial")
	incident := createTestIncident(t, client, title, withDescription("original description"))

	updated := updateIncident(t, client, incident.ID, map[string]interface{}{
		"status": "stable",
	})

	assert.Equal(t, title, updated.Title)
	assert.Equal(t, "original description", updated.Description)
	assert.Equal(t, "stable", updated.Status)
}

func TestUpdateIncident_CloseAndReopen(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Close me"))

	closed := updateIncident(t, client, incident.ID, map[string]interface{}{
		"status": "closed",
	})
	assert.Equal(t, "closed", closed.Status)
	require.NotNil(t, closed.ClosedAt)

	reopened := updateIncident(t, client, incident.ID, map[string]interface{}{
		"status": "active",
	})
	assert.Equal(t, "active", reopened.Status)
	assert.Nil(t, reopened.ClosedAt)
}

func TestUpdateIncident_ReassignsCommander(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Handover via update"))

	newCommander := uniqueEmail("relief")
	updateIncident(t, client, incident.ID, map[string]interface{}{
		"commander_email": newCommander,
	})

	roles := activeRoles(t, client, incident.ID)
	commander := activeHolder(roles, "incident_commander")
	require.NotNil(t, commander)
	assert.Equal(t, newCommander, commander.AssigneeEmail)

	// The reporter seat was not part of the update and keeps its holder.
	reporter := activeHolder(roles, "reporter")
	require.NotNil(t, reporter)
	assert.Equal(t, userEmail, reporter.AssigneeEmail)
}

func TestUpdateIncident_NotFound(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	resp, err := client.PUT("/api/v1/incidents/"+uuid.NewString(), map[string]interface{}{
		"title": "ghost",
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateIncident_Validation(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	incident := createTestIncident(t, client, uniqueTitle("Bad updates"))

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"empty title", map[string]interface{}{"title": ""}},
		{"bad status", map[string]interface{}{"status": "solved"}},
		{"bad commander email", map[string]interface{}{"commander_email": "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.PUT("/api/v1/incidents/"+incident.ID, tt.payload)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestListIncidents(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	first := createTestIncident(t, client, uniqueTitle("List A"))
	second := createTestIncident(t, client, uniqueTitle("List B"))

	resp, err := client.GET("/api/v1/incidents?limit=100")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Incidents []incidentData `json:"incidents"`
			Total     int            `json:"total"`
			Limit     int            `json:"limit"`
			Offset    int            `json:"offset"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	assert.GreaterOrEqual(t, result.Data.Total, 2)
	assert.Equal(t, 100, result.Data.Limit)
	assert.Equal(t, 0, result.Data.Offset)

	ids := make(map[string]bool)
	for _, inc := range result.Data.Incidents {
		ids[inc.ID] = true
	}
	assert.True(t, ids[first.ID])
	assert.True(t, ids[second.ID])
}

func TestListIncidents_NewestFirst(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	older := createTestIncident(t, client, uniqueTitle("Older"))
	newer := createTestIncident(t, client, uniqueTitle("Newer"))

	resp, err := client.GET("/api/v1/incidents?limit=100")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Incidents []incidentData `json:"incidents"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	olderIdx, newerIdx := -1, -1
	for i, inc := range result.Data.Incidents {
		switch inc.ID {
		case older.ID:
			olderIdx = i
		case newer.ID:
			newerIdx = i
		}
	}
	require.NotEqual(t, -1, olderIdx)
	require.NotEqual(t, -1, newerIdx)
	assert.Less(t, newerIdx, olderIdx)
}

func TestListIncidents_StatusFilter(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	stable := createTestIncident(t, client, uniqueTitle("Stable one"), withStatus("stable"))
	active := createTestIncident(t, client, uniqueTitle("Active one"))

	resp, err := client.GET("/api/v1/incidents?status=stable&limit=100")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Incidents []incidentData `json:"incidents"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	found := false
	for _, inc := range result.Data.Incidents {
		assert.Equal(t, "stable", inc.Status)
		if inc.ID == stable.ID {
			found = true
		}
		assert.NotEqual(t, active.ID, inc.ID)
	}
	assert.True(t, found)
}

func TestListIncidents_Pagination(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	for i := 0; i < 3; i++ {
		createTestIncident(t, client, uniqueTitle(fmt.Sprintf("Page %d", i)))
	}

	resp, err := client.GET("/api/v1/incidents?limit=2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Data struct {
			Incidents []incidentData `json:"incidents"`
			Total     int            `json:"total"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &page)

	assert.Len(t, page.Data.Incidents, 2)
	assert.GreaterOrEqual(t, page.Data.Total, 3)

	resp, err = client.GET("/api/v1/incidents?limit=2&offset=2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var next struct {
		Data struct {
			Incidents []incidentData `json:"incidents"`
			Offset    int            `json:"offset"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &next)

	assert.Equal(t, 2, next.Data.Offset)
	for _, inc := range next.Data.Incidents {
		for _, seen := range page.Data.Incidents {
			assert.NotEqual(t, seen.ID, inc.ID)
		}
	}
}

func TestListIncidents_BadQueryParams(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsUser(t)

	for _, query := range []string{
		"status=exploded",
		"limit=abc",
		"limit=0",
		"limit=-5",
		"offset=abc",
		"offset=-1",
	} {
		t.Run(query, func(t *testing.T) {
			resp, err := client.GET("/api/v1/incidents?" + query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestDeleteIncident_AdminOnly(t *testing.T) {
	userClient := newTestClient(t)
	userClient.LoginAsUser(t)

	incident := createTestIncident(t, userClient, uniqueTitle("To be deleted"))

	resp, err := userClient.DELETE("/api/v1/incidents/" + incident.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	adminClient := newTestClient(t)
	adminClient.LoginAsAdmin(t)

	resp, err = adminClient.DELETE("/api/v1/incidents/" + incident.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = userClient.GET("/api/v1/incidents/" + incident.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Role history went with the incident.
	history := roleHistory(t, userClient, incident.ID)
	assert.Empty(t, history)
}

func TestDeleteIncident_NotFound(t *testing.T) {
	client := newTestClient(t)
	client.LoginAsAdmin(t)

	resp, err := client.DELETE("/api/v1/incidents/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
