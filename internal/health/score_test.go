package health

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"vmwarden/internal/models"
)

func TestScoreHealthyTarget(t *testing.T) {
	sig := Signals{
		Power:           models.PowerRunning,
		CPUPercent:      []float64{10, 20, 30},
		MemoryAvailable: []float64{512 * 1024 * 1024, 600 * 1024 * 1024},
		Heartbeats:      12,
		HeartbeatsKnown: true,
	}
	a := Score("web-01", sig, time.Now())
	if a.Score != 100 {
		t.Fatalf("expected score 100, got %d", a.Score)
	}
	if a.Category != models.CategoryHealthy {
		t.Fatalf("expected healthy, got %s", a.Category)
	}
	if len(a.Issues) != 0 {
		t.Fatalf("expected no issues, got %v", a.Issues)
	}
}

func TestScoreStoppedTarget(t *testing.T) {
	sig := Signals{
		Power:           models.PowerStopped,
		CPUPercent:      []float64{5},
		MemoryAvailable: []float64{400 * 1024 * 1024},
		Heartbeats:      9,
		HeartbeatsKnown: true,
	}
	a := Score("web-02", sig, time.Now())
	if a.Score != 50 {
		t.Fatalf("expected score 50, got %d", a.Score)
	}
	if a.Category != models.CategoryDegraded {
		t.Fatalf("expected degraded, got %s", a.Category)
	}
	if len(a.Issues) != 1 || a.Issues[0] != "resource not running" {
		t.Fatalf("unexpected issues: %v", a.Issues)
	}
}

func TestScoreOverloadedTarget(t *testing.T) {
	sig := Signals{
		Power:           models.PowerRunning,
		CPUPercent:      []float64{92, 88, 95},
		MemoryAvailable: []float64{40 * 1024 * 1024, 60 * 1024 * 1024},
		Heartbeats:      2,
		HeartbeatsKnown: true,
	}
	a := Score("web-03", sig, time.Now())
	if a.Score != 25 {
		t.Fatalf("expected score 25 (100-20-25-30), got %d", a.Score)
	}
	if a.Category != models.CategoryUnhealthy {
		t.Fatalf("expected unhealthy, got %s", a.Category)
	}
	if len(a.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %v", a.Issues)
	}
}

func TestScoreAllPenaltiesGoesNegative(t *testing.T) {
	sig := Signals{
		Power:           models.PowerStopped,
		CPUPercent:      []float64{99},
		MemoryAvailable: []float64{1024},
		Heartbeats:      0,
		HeartbeatsKnown: true,
	}
	a := Score("web-04", sig, time.Now())
	if a.Score != -25 {
		t.Fatalf("expected score -25, got %d", a.Score)
	}
	if a.Category != models.CategoryUnhealthy {
		t.Fatalf("expected unhealthy, got %s", a.Category)
	}
	if len(a.Issues) != 4 {
		t.Fatalf("expected 4 issues, got %v", a.Issues)
	}
}

func TestScoreThresholdsAreStrict(t *testing.T) {
	// Averages exactly on a threshold must not trigger a penalty.
	sig := Signals{
		Power:           models.PowerRunning,
		CPUPercent:      []float64{80, 80},
		MemoryAvailable: []float64{100 * 1024 * 1024},
		Heartbeats:      5,
		HeartbeatsKnown: true,
	}
	a := Score("edge", sig, time.Now())
	if a.Score != 100 {
		t.Fatalf("expected boundary values to pass, got score %d with issues %v", a.Score, a.Issues)
	}
}

func TestScoreUnknownPowerPenalized(t *testing.T) {
	a := Score("ghost", Signals{Power: models.PowerUnknown}, time.Now())
	if a.Score != 50 {
		t.Fatalf("expected unknown power to count as not running, got %d", a.Score)
	}
}

func TestScoreMissingDataAppliesNoPenalty(t *testing.T) {
	// No samples and no heartbeat answer: only the power rule can fire.
	a := Score("quiet", Signals{Power: models.PowerRunning}, time.Now())
	if a.Score != 100 {
		t.Fatalf("expected missing data to score 100, got %d (%v)", a.Score, a.Issues)
	}
	if len(a.Issues) != 0 {
		t.Fatalf("expected no issues, got %v", a.Issues)
	}
}

func TestScoreDeterministic(t *testing.T) {
	sig := Signals{
		Power:           models.PowerRunning,
		CPUPercent:      []float64{85, 90},
		MemoryAvailable: []float64{90 * 1024 * 1024},
		Heartbeats:      1,
		HeartbeatsKnown: true,
	}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	first := Score("same", sig, now)
	second := Score("same", sig, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different assessments:\n%+v\n%+v", first, second)
	}
}

func TestScoreIssueMessages(t *testing.T) {
	sig := Signals{
		Power:           models.PowerRunning,
		CPUPercent:      []float64{90},
		MemoryAvailable: []float64{50 * 1024 * 1024},
		Heartbeats:      3,
		HeartbeatsKnown: true,
	}
	a := Score("msg", sig, time.Now())
	wantFragments := []string{"high CPU load", "low available memory", "missing heartbeats: 3"}
	for i, frag := range wantFragments {
		if i >= len(a.Issues) || !strings.Contains(a.Issues[i], frag) {
			t.Fatalf("issue %d missing %q: %v", i, frag, a.Issues)
		}
	}
}

func TestCategorizePartition(t *testing.T) {
	cases := []struct {
		score int
		want  models.Category
	}{
		{100, models.CategoryHealthy},
		{71, models.CategoryHealthy},
		{70, models.CategoryDegraded},
		{50, models.CategoryDegraded},
		{41, models.CategoryDegraded},
		{40, models.CategoryUnhealthy},
		{0, models.CategoryUnhealthy},
		{-25, models.CategoryUnhealthy},
	}
	for _, tc := range cases {
		if got := Categorize(tc.score); got != tc.want {
			t.Fatalf("Categorize(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
