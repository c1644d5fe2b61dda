package remedy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"vmwarden/internal/cloud"
	"vmwarden/internal/models"
)

// stubProvider acks power instructions and reaches the requested state after
// a configurable number of status polls.
type stubProvider struct {
	mu          sync.Mutex
	state       models.PowerState
	pollsNeeded int
	polls       int

	stopErr   error
	startErr  error
	statusErr error
	pending   models.PowerState

	stopCalls  int
	startCalls int
}

func (s *stubProvider) Status(ctx context.Context, target string) (models.PowerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return models.PowerUnknown, s.statusErr
	}
	s.polls++
	if s.pending != "" && s.polls >= s.pollsNeeded {
		s.state = s.pending
		s.pending = ""
		s.polls = 0
	}
	return s.state, nil
}

func (s *stubProvider) Stop(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	if s.stopErr != nil {
		return s.stopErr
	}
	s.pending = models.PowerStopped
	return nil
}

func (s *stubProvider) Start(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	if s.startErr != nil {
		return s.startErr
	}
	s.pending = models.PowerRunning
	return nil
}

func (s *stubProvider) Metric(ctx context.Context, target, metric string, window time.Duration) ([]models.MetricSample, error) {
	return nil, nil
}

func (s *stubProvider) HeartbeatCount(ctx context.Context, target string, window time.Duration) (int, error) {
	return 0, nil
}

func (s *stubProvider) ListTargets(ctx context.Context, resourceGroup string) ([]string, error) {
	return nil, nil
}

func TestRestartHappyPath(t *testing.T) {
	provider := &stubProvider{state: models.PowerRunning, pollsNeeded: 2}
	r := New(provider, time.Millisecond, 10, nil)

	elapsed, err := r.Restart(context.Background(), "web-01")
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if elapsed <= 0 {
		t.Fatalf("expected positive elapsed time, got %v", elapsed)
	}
	if provider.stopCalls != 1 || provider.startCalls != 1 {
		t.Fatalf("expected one stop and one start, got %d/%d", provider.stopCalls, provider.startCalls)
	}
	if provider.state != models.PowerRunning {
		t.Fatalf("expected target running, got %s", provider.state)
	}
}

func TestRestartPollExhaustionFails(t *testing.T) {
	// The stop ack succeeds but the target never reports stopped.
	provider := &stubProvider{state: models.PowerRunning, pollsNeeded: 1000}
	r := New(provider, time.Millisecond, 3, nil)

	_, err := r.Restart(context.Background(), "stuck")
	if err == nil {
		t.Fatal("expected poll exhaustion to fail")
	}
	if !errors.Is(err, cloud.ErrRemediation) {
		t.Fatalf("expected remediation sentinel, got %v", err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("error should name the attempt budget: %v", err)
	}
	if provider.startCalls != 0 {
		t.Fatal("start must not be issued before stop is confirmed")
	}
}

func TestRestartStopErrorSurfaces(t *testing.T) {
	provider := &stubProvider{state: models.PowerRunning, stopErr: errors.New("api refused")}
	r := New(provider, time.Millisecond, 3, nil)

	_, err := r.Restart(context.Background(), "web-02")
	if err == nil || !strings.Contains(err.Error(), "api refused") {
		t.Fatalf("expected stop error to surface, got %v", err)
	}
}

func TestRestartContextCancel(t *testing.T) {
	provider := &stubProvider{state: models.PowerRunning, pollsNeeded: 1000}
	r := New(provider, 50*time.Millisecond, 100, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Restart(ctx, "web-03")
	if err == nil {
		t.Fatal("expected cancellation to abort the restart")
	}
	if !errors.Is(err, cloud.ErrRemediation) {
		t.Fatalf("expected remediation sentinel, got %v", err)
	}
}

func TestApplyGatesOnCategory(t *testing.T) {
	provider := &stubProvider{state: models.PowerRunning, pollsNeeded: 1}
	r := New(provider, time.Millisecond, 10, nil)

	for _, category := range []models.Category{models.CategoryHealthy, models.CategoryDegraded} {
		result := r.Apply(context.Background(), &models.Assessment{Target: "t", Score: 60, Category: category})
		if result.Triggered {
			t.Fatalf("category %s must not trigger a restart", category)
		}
		if provider.stopCalls != 0 {
			t.Fatalf("category %s touched the provider", category)
		}
	}

	result := r.Apply(context.Background(), &models.Assessment{Target: "t", Score: 25, Category: models.CategoryUnhealthy})
	if !result.Triggered {
		t.Fatal("unhealthy category must trigger a restart")
	}
	if result.Error != "" {
		t.Fatalf("unexpected remediation error: %s", result.Error)
	}
	if provider.stopCalls != 1 || provider.startCalls != 1 {
		t.Fatalf("expected full restart cycle, got %d/%d", provider.stopCalls, provider.startCalls)
	}
}

func TestApplyReportsFailureWithoutRetry(t *testing.T) {
	provider := &stubProvider{state: models.PowerRunning, stopErr: errors.New("quota exceeded")}
	r := New(provider, time.Millisecond, 2, nil)

	result := r.Apply(context.Background(), &models.Assessment{Target: "t", Score: 10, Category: models.CategoryUnhealthy})
	if !result.Triggered {
		t.Fatal("gate should have fired")
	}
	if result.Error == "" {
		t.Fatal("expected the failure recorded on the result")
	}
	if provider.stopCalls != 1 {
		t.Fatalf("failed remediation must not be retried, got %d stop calls", provider.stopCalls)
	}
}
