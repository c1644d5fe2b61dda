// Package local provides a cloud.Provider backed by the machine VMWarden
// runs on, sampled with gopsutil. It exists for rehearsal mode: the same
// checks, reports, and remediation flow can be exercised against a laptop or
// venue box without a cloud subscription. Configured target names all map to
// the local host; power transitions are simulated with a short latency.
package local

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"vmwarden/internal/cloud"
	"vmwarden/internal/models"
)

const (
	sampleInterval  = 15 * time.Second
	transitionDelay = 3 * time.Second
	retention       = 2 * time.Hour
)

type simTarget struct {
	power     models.PowerState
	pending   models.PowerState
	pendingAt time.Time
	cpu       []models.MetricSample
	memory    []models.MetricSample
	beats     []time.Time
}

// Provider simulates a resource group of VMs on the local host.
type Provider struct {
	mu      sync.RWMutex
	group   string
	targets map[string]*simTarget
	logger  *zap.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a simulated provider for the given target names. Call Run to
// start background sampling and Close to stop it.
func New(resourceGroup string, targetNames []string, logger *zap.Logger) *Provider {
	targets := make(map[string]*simTarget, len(targetNames))
	for _, name := range targetNames {
		targets[name] = &simTarget{power: models.PowerRunning}
	}
	return &Provider{
		group:   resourceGroup,
		targets: targets,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Run launches the background sampler. It returns immediately.
func (p *Provider) Run() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()
		p.sample()
		for {
			select {
			case <-ticker.C:
				p.sample()
			case <-p.stopCh:
				return
			}
		}
	}()
}

// Close stops the sampler and waits for it to exit.
func (p *Provider) Close() {
	close(p.stopCh)
	p.wg.Wait()
}

// sample takes one host reading and appends it to every running target.
func (p *Provider) sample() {
	now := time.Now()

	var cpuPct float64
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPct = percents[0]
	} else if err != nil && p.logger != nil {
		p.logger.Warn("cpu sample failed", zap.Error(err))
	}

	var available float64
	if vm, err := mem.VirtualMemory(); err == nil {
		available = float64(vm.Available)
	} else if p.logger != nil {
		p.logger.Warn("memory sample failed", zap.Error(err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.targets {
		t.settle(now)
		if t.power != models.PowerRunning {
			continue
		}
		t.cpu = append(t.cpu, models.MetricSample{Timestamp: now, Value: cpuPct})
		t.memory = append(t.memory, models.MetricSample{Timestamp: now, Value: available})
		t.beats = append(t.beats, now)
		t.trim(now)
	}
}

// settle applies a pending power transition once its latency has elapsed.
func (t *simTarget) settle(now time.Time) {
	if t.pending != "" && now.After(t.pendingAt) {
		t.power = t.pending
		t.pending = ""
	}
}

func (t *simTarget) trim(now time.Time) {
	cutoff := now.Add(-retention)
	t.cpu = trimSamples(t.cpu, cutoff)
	t.memory = trimSamples(t.memory, cutoff)
	for len(t.beats) > 0 && t.beats[0].Before(cutoff) {
		t.beats = t.beats[1:]
	}
}

func trimSamples(samples []models.MetricSample, cutoff time.Time) []models.MetricSample {
	for len(samples) > 0 && samples[0].Timestamp.Before(cutoff) {
		samples = samples[1:]
	}
	return samples
}

func (p *Provider) lookup(target string) (*simTarget, error) {
	t, ok := p.targets[target]
	if !ok {
		return nil, fmt.Errorf("%w: unknown target %q", cloud.ErrResourceLookup, target)
	}
	return t, nil
}

// Status reports the simulated power state.
func (p *Provider) Status(_ context.Context, target string) (models.PowerState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.lookup(target)
	if err != nil {
		return models.PowerUnknown, err
	}
	t.settle(time.Now())
	return t.power, nil
}

// Metric serves buffered host samples inside the trailing window.
func (p *Provider) Metric(_ context.Context, target, metric string, window time.Duration) ([]models.MetricSample, error) {
	if window <= 0 {
		window = cloud.DefaultWindow
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, err := p.lookup(target)
	if err != nil {
		return nil, err
	}
	var source []models.MetricSample
	switch metric {
	case cloud.MetricCPUPercent:
		source = t.cpu
	case cloud.MetricAvailableMemory:
		source = t.memory
	default:
		return nil, fmt.Errorf("%w: unknown metric %q", cloud.ErrFetchFailed, metric)
	}
	cutoff := time.Now().Add(-window)
	out := make([]models.MetricSample, 0, len(source))
	for _, s := range source {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

// HeartbeatCount counts buffered samples in the window; in rehearsal mode
// every successful sample doubles as a liveness record.
func (p *Provider) HeartbeatCount(_ context.Context, target string, window time.Duration) (int, error) {
	if window <= 0 {
		window = cloud.DefaultWindow
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, err := p.lookup(target)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-window)
	count := 0
	for _, b := range t.beats {
		if !b.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

// Stop schedules a simulated power-off after the transition latency.
func (p *Provider) Stop(_ context.Context, target string) error {
	return p.transition(target, models.PowerStopped)
}

// Start schedules a simulated power-on after the transition latency.
func (p *Provider) Start(_ context.Context, target string) error {
	return p.transition(target, models.PowerRunning)
}

func (p *Provider) transition(target string, to models.PowerState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.targets[target]
	if !ok {
		return fmt.Errorf("%w: unknown target %q", cloud.ErrRemediation, target)
	}
	t.pending = to
	t.pendingAt = time.Now().Add(transitionDelay)
	if p.logger != nil {
		p.logger.Info("simulated power transition scheduled",
			zap.String("target", target),
			zap.String("to", string(to)))
	}
	return nil
}

// ListTargets returns the configured simulated target names.
func (p *Provider) ListTargets(_ context.Context, resourceGroup string) ([]string, error) {
	if resourceGroup != "" && resourceGroup != p.group {
		return nil, fmt.Errorf("%w: unknown resource group %q", cloud.ErrResourceLookup, resourceGroup)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.targets))
	for name := range p.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
