package models

import "time"

// PowerState is the provider-reported run state of a target VM.
type PowerState string

const (
	PowerRunning PowerState = "running"
	PowerStopped PowerState = "stopped"
	PowerUnknown PowerState = "unknown"
)

// Category buckets a health score into an operator-facing verdict.
type Category string

const (
	CategoryHealthy   Category = "healthy"
	CategoryDegraded  Category = "degraded"
	CategoryUnhealthy Category = "unhealthy"
)

// MetricSample is one time-stamped observation from a metric stream.
type MetricSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Assessment is the computed health verdict for one target. It is created
// once per invocation and never mutated afterwards; a new check produces a
// new Assessment.
type Assessment struct {
	Target    string    `json:"target"`
	Score     int       `json:"score"`
	Category  Category  `json:"category"`
	Issues    []string  `json:"issues"`
	Timestamp time.Time `json:"timestamp"`
}

// NeedsRestart reports whether the remediation gate fires for this
// assessment. Only the unhealthy category triggers a restart; degraded
// targets are reported but left alone.
func (a *Assessment) NeedsRestart() bool {
	return a != nil && a.Category == CategoryUnhealthy
}

// RemediationResult records the outcome of one restart decision.
type RemediationResult struct {
	Target    string        `json:"target"`
	Triggered bool          `json:"triggered"`
	Reason    string        `json:"reason"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Error     string        `json:"error,omitempty"`
}

// FleetSummary aggregates per-target assessments for one resource group.
//
// Unhealthy counts both the degraded and unhealthy categories so that
// Total == Healthy + Unhealthy always holds; Degraded breaks the overlap out
// separately for operators who care about the distinction.
type FleetSummary struct {
	ResourceGroup    string    `json:"resource_group"`
	Total            int       `json:"total"`
	Healthy          int       `json:"healthy"`
	Unhealthy        int       `json:"unhealthy"`
	Degraded         int       `json:"degraded"`
	UnhealthyTargets []string  `json:"unhealthy_targets"`
	FailedTargets    []string  `json:"failed_targets,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
