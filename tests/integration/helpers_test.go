//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuapuikia/dispatch/internal/testutil"
)

// uniqueSeq feeds unique suffixes for titles and emails so tests never
// collide on shared database state.
var uniqueSeq atomic.Int64

func uniqueSuffix() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), uniqueSeq.Add(1))
}

// uniqueTitle returns an incident title that no other test will produce.
// Notification tests match Mailpit subjects on it.
func uniqueTitle(prefix string) string {
	return fmt.Sprintf("%s %s", prefix, uniqueSuffix())
}

// uniqueEmail returns an email address unique to this test run.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uniqueSuffix())
}

// incidentData mirrors the incident JSON shape.
type incidentData struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}

// roleData mirrors the participant role JSON shape.
type roleData struct {
	ID            string     `json:"id"`
	IncidentID    string     `json:"incident_id"`
	Role          string     `json:"role"`
	AssigneeEmail string     `json:"assignee_email"`
	Active        bool       `json:"active"`
	AssumedAt     time.Time  `json:"assumed_at"`
	RenouncedAt   *time.Time `json:"renounced_at"`
	RenouncedBy   string     `json:"renounced_by"`
}

// assignmentData mirrors the role assignment response.
type assignmentData struct {
	IncidentID       string `json:"incident_id"`
	Role             string `json:"role"`
	AssigneeEmail    string `json:"assignee_email"`
	Changed          bool   `json:"changed"`
	PreviousAssignee string `json:"previous_assignee"`
}

type incidentOption func(map[string]interface{})

func withDescription(description string) incidentOption {
	return func(m map[string]interface{}) {
		m["description"] = description
	}
}

func withStatus(status string) incidentOption {
	return func(m map[string]interface{}) {
		m["status"] = status
	}
}

func withCommander(email string) incidentOption {
	return func(m map[string]interface{}) {
		m["commander_email"] = email
	}
}

func withReporter(email string) incidentOption {
	return func(m map[string]interface{}) {
		m["reporter_email"] = email
	}
}

// createTestIncident declares an incident and returns it. The incident is
// deleted when the test finishes.
func createTestIncident(t *testing.T, client *testutil.Client, title string, opts ...incidentOption) incidentData {
	t.Helper()

	payload := map[string]interface{}{
		"title":       title,
		"description": "Integration test incident",
	}
	for _, opt := range opts {
		opt(payload)
	}

	resp, err := client.POST("/api/v1/incidents", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data.ID)

	t.Cleanup(func() { cleanupIncident(t, result.Data.ID) })
	return result.Data
}

// cleanupIncident removes an incident as admin. Already-deleted incidents
// are not an error.
func cleanupIncident(t *testing.T, id string) {
	t.Helper()

	client := newTestClientWithoutValidation()
	client.LoginAsAdmin(t)

	resp, err := client.DELETE("/api/v1/incidents/" + id)
	if err != nil {
		t.Logf("cleanup warning (incident %s): %v", id, err)
		return
	}
	resp.Body.Close()
}

// getIncident fetches an incident by ID.
func getIncident(t *testing.T, client *testutil.Client, id string) incidentData {
	t.Helper()

	resp, err := client.GET("/api/v1/incidents/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// updateIncident applies a partial update and returns the updated incident.
func updateIncident(t *testing.T, client *testutil.Client, id string, payload map[string]interface{}) incidentData {
	t.Helper()

	resp, err := client.PUT("/api/v1/incidents/"+id, payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data incidentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// assignRole hands a role to assignee and returns the assignment outcome.
func assignRole(t *testing.T, client *testutil.Client, incidentID, role, assignee string) assignmentData {
	t.Helper()

	resp, err := client.POST("/api/v1/incidents/"+incidentID+"/roles", map[string]string{
		"role":           role,
		"assignee_email": assignee,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data assignmentData `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// activeRoles returns the currently active role holders for an incident.
func activeRoles(t *testing.T, client *testutil.Client, incidentID string) []roleData {
	t.Helper()

	resp, err := client.GET("/api/v1/incidents/" + incidentID + "/roles")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Roles []roleData `json:"roles"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.Roles
}

// roleHistory returns the full role history for an incident, newest first.
func roleHistory(t *testing.T, client *testutil.Client, incidentID string) []roleData {
	t.Helper()

	resp, err := client.GET("/api/v1/incidents/" + incidentID + "/roles/history")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			History []roleData `json:"history"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.History
}

// activeHolder finds the active entry for a role, or nil when vacant.
func activeHolder(roles []roleData, role string) *roleData {
	for i := range roles {
		if roles[i].Role == role {
			return &roles[i]
		}
	}
	return nil
}

// registerAccount registers a fresh account.
func registerAccount(t *testing.T, client *testutil.Client, email, password string) {
	t.Helper()

	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": password,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}
