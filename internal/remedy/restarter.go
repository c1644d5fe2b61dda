// Package remedy turns an unhealthy assessment into a restart: stop, wait
// for confirmation, start, wait again. Polling is bounded and explicit;
// exhausting it is a failure, never an optimistic success.
package remedy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"vmwarden/internal/cloud"
	"vmwarden/internal/models"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxAttempts  = 30
)

// Restarter issues stop/start instructions with confirmation polling.
// Restarts of the same target are serialized with a per-target lock;
// different targets proceed independently.
type Restarter struct {
	provider     cloud.Provider
	pollInterval time.Duration
	maxAttempts  int
	logger       *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Restarter. Non-positive interval/attempts fall back to the
// package defaults.
func New(provider cloud.Provider, pollInterval time.Duration, maxAttempts int, logger *zap.Logger) *Restarter {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Restarter{
		provider:     provider,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		logger:       logger,
		locks:        make(map[string]*sync.Mutex),
	}
}

// Apply gates on the assessment category and restarts when it is unhealthy.
// The returned result is always populated; Triggered=false means the gate
// did not fire and nothing was touched.
func (r *Restarter) Apply(ctx context.Context, assessment *models.Assessment) models.RemediationResult {
	result := models.RemediationResult{Target: assessment.Target}
	if !assessment.NeedsRestart() {
		result.Reason = fmt.Sprintf("category %s, no action", assessment.Category)
		return result
	}

	result.Triggered = true
	result.Reason = fmt.Sprintf("category unhealthy (score %d)", assessment.Score)

	elapsed, err := r.Restart(ctx, assessment.Target)
	result.Elapsed = elapsed
	if err != nil {
		result.Error = err.Error()
		if r.logger != nil {
			r.logger.Error("remediation failed",
				zap.String("target", assessment.Target),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		}
		return result
	}
	if r.logger != nil {
		r.logger.Info("remediation completed",
			zap.String("target", assessment.Target),
			zap.Duration("elapsed", elapsed))
	}
	return result
}

// Restart performs stop -> confirm stopped -> start -> confirm running and
// reports the elapsed wall-clock time of the whole operation. There is no
// rollback: if start fails after a successful stop, the target stays down
// until the next scheduled or manual invocation re-assesses it.
func (r *Restarter) Restart(ctx context.Context, target string) (time.Duration, error) {
	lock := r.targetLock(target)
	lock.Lock()
	defer lock.Unlock()

	began := time.Now()

	if err := r.provider.Stop(ctx, target); err != nil {
		return time.Since(began), err
	}
	if err := r.waitForState(ctx, target, models.PowerStopped); err != nil {
		return time.Since(began), err
	}
	if err := r.provider.Start(ctx, target); err != nil {
		return time.Since(began), err
	}
	if err := r.waitForState(ctx, target, models.PowerRunning); err != nil {
		return time.Since(began), err
	}
	return time.Since(began), nil
}

// waitForState polls the provider until the target reaches the wanted power
// state, an attempt budget runs out, or the context is canceled. Transient
// lookup errors consume an attempt rather than aborting; the platform often
// refuses status reads mid-transition.
func (r *Restarter) waitForState(ctx context.Context, target string, want models.PowerState) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		state, err := r.provider.Status(ctx, target)
		if err != nil {
			lastErr = err
		} else if state == want {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for %s to reach %s: %v", cloud.ErrRemediation, target, want, ctx.Err())
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %s did not reach %s after %d attempts (last error: %v)",
			cloud.ErrRemediation, target, want, r.maxAttempts, lastErr)
	}
	return fmt.Errorf("%w: %s did not reach %s after %d attempts",
		cloud.ErrRemediation, target, want, r.maxAttempts)
}

func (r *Restarter) targetLock(target string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[target]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[target] = lock
	}
	return lock
}
