// Package manager orchestrates health assessments, fleet checks, and
// remediation for the warden. It owns the provider, the checker, the
// restarter, report persistence, and the notification fan-out; handlers and
// the scheduler only ever talk to the Manager.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vmwarden/internal/cloud"
	"vmwarden/internal/config"
	"vmwarden/internal/health"
	"vmwarden/internal/metrics"
	"vmwarden/internal/models"
	"vmwarden/internal/remedy"
	"vmwarden/internal/report"
)

// Manager wires the warden's components together. All exported methods are
// safe for concurrent use.
type Manager struct {
	cfg       *config.Config
	provider  cloud.Provider
	checker   *health.Checker
	restarter *remedy.Restarter
	reports   *report.Writer
	metrics   *metrics.Metrics
	logger    *zap.Logger

	// broadcast pushes serialized events to the WebSocket hub when set.
	broadcast func([]byte)

	notificationSeq atomic.Uint64
	notificationsMu sync.RWMutex
	notifications   []models.DashboardNotification

	// fleetMu serializes fleet checks; overlapping scheduler and manual
	// runs would double-count remediations.
	fleetMu sync.Mutex

	schedulerMu   sync.Mutex
	schedulerStop chan struct{}
	schedulerWG   sync.WaitGroup
}

// New builds a Manager from its collaborators.
func New(cfg *config.Config, provider cloud.Provider, reports *report.Writer, m *metrics.Metrics, logger *zap.Logger) *Manager {
	mgr := &Manager{
		cfg:       cfg,
		provider:  provider,
		reports:   reports,
		metrics:   m,
		logger:    logger,
		restarter: remedy.New(provider, cfg.Remediation.PollInterval(), cfg.Remediation.MaxAttempts, logger.Named("remedy")),
	}
	checker := health.NewChecker(provider, cfg.Health.Window(), logger.Named("health"))
	checker.OnFetchWarning = func() {
		if m != nil {
			m.FetchWarningsTotal.Inc()
		}
	}
	mgr.checker = checker
	return mgr
}

// SetBroadcast installs the event sink used for the WebSocket stream.
func (mgr *Manager) SetBroadcast(fn func([]byte)) {
	mgr.broadcast = fn
}

// ResourceGroup returns the scope fleet checks run against.
func (mgr *Manager) ResourceGroup() string {
	return mgr.cfg.Provider.ResourceGroup
}

// Reports exposes the report store for read-side handlers.
func (mgr *Manager) Reports() *report.Writer {
	return mgr.reports
}

// AssessTarget runs one assessment, persists it, and fans out events. The
// window is optional; zero means the configured default.
func (mgr *Manager) AssessTarget(ctx context.Context, target string, window time.Duration) (*models.Assessment, error) {
	assessment, err := mgr.checker.AssessWindow(ctx, target, window)
	if err != nil {
		if mgr.metrics != nil {
			mgr.metrics.LookupFailuresTotal.Inc()
		}
		mgr.logger.Error("assessment aborted",
			zap.String("target", target),
			zap.Error(err))
		return nil, err
	}

	if mgr.metrics != nil {
		mgr.metrics.AssessmentsTotal.WithLabelValues(string(assessment.Category)).Inc()
	}
	if err := mgr.reports.WriteAssessment(assessment); err != nil {
		mgr.logger.Warn("failed to persist assessment", zap.String("target", target), zap.Error(err))
	}

	mgr.logger.Info("assessment completed",
		zap.String("target", target),
		zap.Int("score", assessment.Score),
		zap.String("category", string(assessment.Category)),
		zap.Int("issues", len(assessment.Issues)))

	mgr.notifyAssessment(assessment)
	mgr.broadcastEvent("assessment", assessment)
	return assessment, nil
}

// RemediateTarget assesses a target and restarts it when the gate fires.
// The error is non-nil only when the assessment itself could not run.
func (mgr *Manager) RemediateTarget(ctx context.Context, target string, window time.Duration) (*models.Assessment, *models.RemediationResult, error) {
	assessment, err := mgr.AssessTarget(ctx, target, window)
	if err != nil {
		return nil, nil, err
	}
	result := mgr.applyRemediation(ctx, assessment)
	return assessment, result, nil
}

func (mgr *Manager) applyRemediation(ctx context.Context, assessment *models.Assessment) *models.RemediationResult {
	result := mgr.restarter.Apply(ctx, assessment)
	if result.Triggered {
		if mgr.metrics != nil {
			outcome := "success"
			if result.Error != "" {
				outcome = "failure"
			}
			mgr.metrics.RemediationsTotal.WithLabelValues(outcome).Inc()
			mgr.metrics.RemediationSeconds.Observe(result.Elapsed.Seconds())
		}
		mgr.notifyRemediation(&result)
		mgr.broadcastEvent("remediation", &result)
	}
	return &result
}

// CheckFleet assesses every target in the configured resource group
// sequentially and aggregates a summary. One target's lookup failure is
// recorded and does not block the rest. When remediate is true, unhealthy
// targets are restarted as they are found.
func (mgr *Manager) CheckFleet(ctx context.Context, remediate bool) (*models.FleetSummary, error) {
	mgr.fleetMu.Lock()
	defer mgr.fleetMu.Unlock()

	began := time.Now()
	group := mgr.ResourceGroup()

	targets, err := mgr.provider.ListTargets(ctx, group)
	if err != nil {
		return nil, err
	}
	sort.Strings(targets)

	summary := &models.FleetSummary{
		ResourceGroup:    group,
		UnhealthyTargets: []string{},
	}

	for _, target := range targets {
		assessment, err := mgr.AssessTarget(ctx, target, 0)
		if err != nil {
			if errors.Is(err, cloud.ErrResourceLookup) {
				summary.FailedTargets = append(summary.FailedTargets, target)
				continue
			}
			return nil, err
		}
		summary.Total++
		switch assessment.Category {
		case models.CategoryHealthy:
			summary.Healthy++
		case models.CategoryDegraded:
			summary.Degraded++
			summary.Unhealthy++
			summary.UnhealthyTargets = append(summary.UnhealthyTargets, target)
		case models.CategoryUnhealthy:
			summary.Unhealthy++
			summary.UnhealthyTargets = append(summary.UnhealthyTargets, target)
		}
		if remediate {
			mgr.applyRemediation(ctx, assessment)
		}
	}
	summary.Timestamp = time.Now().UTC()

	if mgr.metrics != nil {
		mgr.metrics.FleetChecksTotal.Inc()
		mgr.metrics.FleetCheckSeconds.Observe(time.Since(began).Seconds())
		mgr.metrics.FleetTargetsTotal.Set(float64(summary.Total))
		mgr.metrics.FleetHealthyTotal.Set(float64(summary.Healthy))
		mgr.metrics.FleetAttentionGauge.Set(float64(summary.Unhealthy))
	}
	if err := mgr.reports.WriteSummary(summary); err != nil {
		mgr.logger.Warn("failed to persist fleet summary", zap.Error(err))
	}

	mgr.logger.Info("fleet check completed",
		zap.String("resource_group", group),
		zap.Int("total", summary.Total),
		zap.Int("healthy", summary.Healthy),
		zap.Int("unhealthy", summary.Unhealthy),
		zap.Int("failed", len(summary.FailedTargets)),
		zap.Duration("elapsed", time.Since(began)))

	mgr.notifyFleetSummary(summary)
	mgr.broadcastEvent("fleet_summary", summary)
	return summary, nil
}

// broadcastEvent serializes an event envelope for the WebSocket hub.
func (mgr *Manager) broadcastEvent(kind string, payload any) {
	if mgr.broadcast == nil {
		return
	}
	b, err := json.Marshal(map[string]any{"type": kind, "data": payload})
	if err != nil {
		return
	}
	mgr.broadcast(b)
}

// Shutdown stops background work.
func (mgr *Manager) Shutdown() {
	mgr.StopScheduler()
}
