package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vmwarden/internal/cloud"
	"vmwarden/internal/models"
)

// Checker fetches a target's signals from the provider and scores them.
// Each signal fetch is an independent network call: a failed metric or
// heartbeat fetch degrades to "no data" with a warning, while a failed
// status lookup aborts the assessment for that target.
type Checker struct {
	provider cloud.Provider
	window   time.Duration
	logger   *zap.Logger

	// OnFetchWarning, when set, is invoked once per degraded signal fetch.
	OnFetchWarning func()
}

// NewChecker builds a checker with the given look-back window. A zero
// window falls back to cloud.DefaultWindow.
func NewChecker(provider cloud.Provider, window time.Duration, logger *zap.Logger) *Checker {
	if window <= 0 {
		window = cloud.DefaultWindow
	}
	return &Checker{provider: provider, window: window, logger: logger}
}

// Window returns the configured look-back window.
func (c *Checker) Window() time.Duration {
	return c.window
}

// Assess runs one complete assessment. The returned error is non-nil only
// when the status lookup itself fails; everything else degrades.
func (c *Checker) Assess(ctx context.Context, target string) (*models.Assessment, error) {
	return c.AssessWindow(ctx, target, c.window)
}

// AssessWindow is Assess with a caller-supplied look-back window.
func (c *Checker) AssessWindow(ctx context.Context, target string, window time.Duration) (*models.Assessment, error) {
	if window <= 0 {
		window = c.window
	}

	power, err := c.provider.Status(ctx, target)
	if err != nil {
		return nil, err
	}

	sig := Signals{Power: power}

	if samples, err := c.provider.Metric(ctx, target, cloud.MetricCPUPercent, window); err != nil {
		c.warn(target, cloud.MetricCPUPercent, err)
	} else {
		sig.CPUPercent = values(samples)
	}

	if samples, err := c.provider.Metric(ctx, target, cloud.MetricAvailableMemory, window); err != nil {
		c.warn(target, cloud.MetricAvailableMemory, err)
	} else {
		sig.MemoryAvailable = values(samples)
	}

	if count, err := c.provider.HeartbeatCount(ctx, target, window); err != nil {
		c.warn(target, "heartbeat", err)
	} else {
		sig.Heartbeats = count
		sig.HeartbeatsKnown = true
	}

	assessment := Score(target, sig, time.Now().UTC())
	return &assessment, nil
}

func (c *Checker) warn(target, signal string, err error) {
	if c.OnFetchWarning != nil {
		c.OnFetchWarning()
	}
	if c.logger != nil {
		c.logger.Warn("signal fetch failed, scoring without it",
			zap.String("target", target),
			zap.String("signal", signal),
			zap.Error(err))
	}
}

func values(samples []models.MetricSample) []float64 {
	if len(samples) == 0 {
		return nil
	}
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}
