// Prometheus instrumentation for the task workflow. Label cardinality is
// bounded by the closed kind enumeration.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// tasksCreated counts citizen submissions by kind.
	tasksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_tasks_created_total",
			Help: "Total number of tasks created by citizens.",
		},
		[]string{"kind"},
	)

	// tasksResolved counts staff resolutions by kind and outcome
	// (approved / rejected).
	tasksResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_tasks_resolved_total",
			Help: "Total number of tasks resolved by staff.",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(tasksCreated, tasksResolved)
}
