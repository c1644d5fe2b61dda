// Package health holds the health-assessment decision procedure: a fixed
// set of penalty rules that reduce a target's signals to a bounded score and
// category. Scoring is pure; fetching lives in Checker.
package health

import (
	"fmt"
	"time"

	"vmwarden/internal/models"
)

// Penalty rules. The score starts at StartScore and only ever decreases;
// with every penalty applied it bottoms out at -25.
const (
	StartScore = 100

	PenaltyNotRunning  = 50
	PenaltyHighCPU     = 20
	PenaltyLowMemory   = 25
	PenaltyNoHeartbeat = 30

	CPUThresholdPercent = 80.0
	MemoryThresholdMiB  = 100.0
	MemoryThresholdB    = MemoryThresholdMiB * 1024 * 1024
	HeartbeatMinimum    = 5
)

// Category boundaries: >70 healthy, 41..70 degraded, <=40 unhealthy. The
// three ranges partition every possible score, negatives included.
const (
	healthyFloor  = 70
	degradedFloor = 40
)

// Signals are the fetched inputs to one assessment. Empty sample slices and
// HeartbeatsKnown=false mean "no data": the corresponding rule is skipped
// entirely, applying no penalty and recording no issue.
type Signals struct {
	Power           models.PowerState
	CPUPercent      []float64
	MemoryAvailable []float64
	Heartbeats      int
	HeartbeatsKnown bool
}

// Score applies the penalty rules to one target's signals. It is
// deterministic: identical inputs yield an identical score, category, and
// issue list.
func Score(target string, sig Signals, now time.Time) models.Assessment {
	score := StartScore
	issues := []string{}

	if sig.Power != models.PowerRunning {
		score -= PenaltyNotRunning
		issues = append(issues, "resource not running")
	}

	if len(sig.CPUPercent) > 0 {
		avg := mean(sig.CPUPercent)
		if avg > CPUThresholdPercent {
			score -= PenaltyHighCPU
			issues = append(issues, fmt.Sprintf("high CPU load: average %.1f%% over window", avg))
		}
	}

	if len(sig.MemoryAvailable) > 0 {
		avg := mean(sig.MemoryAvailable)
		if avg < MemoryThresholdB {
			score -= PenaltyLowMemory
			issues = append(issues, fmt.Sprintf("low available memory: average %.1f MiB over window", avg/1024/1024))
		}
	}

	if sig.HeartbeatsKnown && sig.Heartbeats < HeartbeatMinimum {
		score -= PenaltyNoHeartbeat
		issues = append(issues, fmt.Sprintf("missing heartbeats: %d records in window", sig.Heartbeats))
	}

	return models.Assessment{
		Target:    target,
		Score:     score,
		Category:  Categorize(score),
		Issues:    issues,
		Timestamp: now,
	}
}

// Categorize maps a score onto its category bucket.
func Categorize(score int) models.Category {
	switch {
	case score > healthyFloor:
		return models.CategoryHealthy
	case score > degradedFloor:
		return models.CategoryDegraded
	default:
		return models.CategoryUnhealthy
	}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
