package participants

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch"

var roleAssignments = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "participants",
		Name:      "role_assignments_total",
		Help:      "Total role assignment requests by outcome",
	},
	[]string{"role", "outcome"},
)

// recordRoleAssignment records an assignment outcome.
func recordRoleAssignment(role, outcome string) {
	roleAssignments.WithLabelValues(role, outcome).Inc()
}
