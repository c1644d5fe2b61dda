// Package azcli implements the cloud.Provider interface by shelling out to
// an az-compatible CLI and parsing its JSON output into typed records.
package azcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"vmwarden/internal/cloud"
	"vmwarden/internal/models"
)

// Runner executes one CLI invocation and returns its stdout. Injectable so
// tests can replay captured JSON without a cloud subscription.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

type execRunner struct {
	binary string
}

func (r *execRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s %s: %s", r.binary, args[0], msg)
	}
	return stdout.Bytes(), nil
}

// Client talks to the platform through the provider CLI. One Client serves
// all targets in a single subscription/resource-group scope.
type Client struct {
	runner        Runner
	resourceGroup string
	workspace     string
	logger        *zap.Logger
}

// Options configure a Client. Binary defaults to "az"; Runner overrides the
// binary entirely when set.
type Options struct {
	Binary        string
	ResourceGroup string
	Workspace     string
	Runner        Runner
}

// New builds a CLI-backed provider.
func New(opts Options, logger *zap.Logger) *Client {
	runner := opts.Runner
	if runner == nil {
		binary := opts.Binary
		if binary == "" {
			binary = "az"
		}
		runner = &execRunner{binary: binary}
	}
	return &Client{
		runner:        runner,
		resourceGroup: opts.ResourceGroup,
		workspace:     opts.Workspace,
		logger:        logger,
	}
}

// instanceView models the subset of `vm get-instance-view` output we read.
type instanceView struct {
	Statuses []struct {
		Code string `json:"code"`
	} `json:"statuses"`
}

// Status resolves the power state from the instance view. The CLI reports
// power as a "PowerState/<state>" status code alongside provisioning codes.
func (c *Client) Status(ctx context.Context, target string) (models.PowerState, error) {
	out, err := c.runner.Run(ctx, "vm", "get-instance-view",
		"--resource-group", c.resourceGroup,
		"--name", target,
		"--query", "instanceView",
		"--output", "json")
	if err != nil {
		return models.PowerUnknown, fmt.Errorf("%w: %s: %v", cloud.ErrResourceLookup, target, err)
	}
	var view instanceView
	if err := json.Unmarshal(out, &view); err != nil {
		return models.PowerUnknown, fmt.Errorf("%w: %s: %v", cloud.ErrResourceLookup, target, err)
	}
	for _, st := range view.Statuses {
		switch st.Code {
		case "PowerState/running":
			return models.PowerRunning, nil
		case "PowerState/stopped", "PowerState/deallocated":
			return models.PowerStopped, nil
		}
	}
	return models.PowerUnknown, nil
}

// metricsResponse models the subset of `monitor metrics list` output we read.
type metricsResponse struct {
	Value []struct {
		Timeseries []struct {
			Data []struct {
				TimeStamp time.Time `json:"timeStamp"`
				Average   *float64  `json:"average"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"value"`
}

// platform metric names for the streams VMWarden scores on.
var metricNames = map[string]string{
	cloud.MetricCPUPercent:      "Percentage CPU",
	cloud.MetricAvailableMemory: "Available Memory Bytes",
}

// Metric fetches averaged per-minute samples over the trailing window.
// Samples with no average (gaps in the platform pipeline) are dropped.
func (c *Client) Metric(ctx context.Context, target, metric string, window time.Duration) ([]models.MetricSample, error) {
	name, ok := metricNames[metric]
	if !ok {
		return nil, fmt.Errorf("%w: unknown metric %q", cloud.ErrFetchFailed, metric)
	}
	out, err := c.runner.Run(ctx, "monitor", "metrics", "list",
		"--resource", target,
		"--resource-group", c.resourceGroup,
		"--resource-type", "Microsoft.Compute/virtualMachines",
		"--metric", name,
		"--aggregation", "Average",
		"--interval", "PT1M",
		"--offset", offsetArg(window),
		"--output", "json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", cloud.ErrFetchFailed, target, metric, err)
	}
	var resp metricsResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", cloud.ErrFetchFailed, target, metric, err)
	}
	var samples []models.MetricSample
	for _, v := range resp.Value {
		for _, ts := range v.Timeseries {
			for _, d := range ts.Data {
				if d.Average == nil {
					continue
				}
				samples = append(samples, models.MetricSample{Timestamp: d.TimeStamp, Value: *d.Average})
			}
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	return samples, nil
}

// heartbeatResponse models the tabular log-analytics query result.
type heartbeatResponse struct {
	Count int `json:"count"`
}

// HeartbeatCount counts agent liveness records in the log workspace. A VM
// whose agent is down stops emitting heartbeats long before metrics dry up,
// so this is the connectivity signal.
func (c *Client) HeartbeatCount(ctx context.Context, target string, window time.Duration) (int, error) {
	if c.workspace == "" {
		return 0, fmt.Errorf("%w: no log workspace configured", cloud.ErrFetchFailed)
	}
	query := fmt.Sprintf(
		"Heartbeat | where Computer == '%s' | where TimeGenerated > ago(%s) | summarize count = count()",
		target, offsetArg(window))
	out, err := c.runner.Run(ctx, "monitor", "log-analytics", "query",
		"--workspace", c.workspace,
		"--analytics-query", query,
		"--output", "json")
	if err != nil {
		return 0, fmt.Errorf("%w: %s heartbeat: %v", cloud.ErrFetchFailed, target, err)
	}
	var rows []heartbeatResponse
	if err := json.Unmarshal(out, &rows); err != nil {
		return 0, fmt.Errorf("%w: %s heartbeat: %v", cloud.ErrFetchFailed, target, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

// Stop issues a power-off and returns on the CLI ack, not on completion.
func (c *Client) Stop(ctx context.Context, target string) error {
	_, err := c.runner.Run(ctx, "vm", "stop",
		"--resource-group", c.resourceGroup,
		"--name", target,
		"--no-wait")
	if err != nil {
		return fmt.Errorf("%w: stop %s: %v", cloud.ErrRemediation, target, err)
	}
	if c.logger != nil {
		c.logger.Info("stop instruction issued", zap.String("target", target))
	}
	return nil
}

// Start issues a power-on, acked the same way as Stop.
func (c *Client) Start(ctx context.Context, target string) error {
	_, err := c.runner.Run(ctx, "vm", "start",
		"--resource-group", c.resourceGroup,
		"--name", target,
		"--no-wait")
	if err != nil {
		return fmt.Errorf("%w: start %s: %v", cloud.ErrRemediation, target, err)
	}
	if c.logger != nil {
		c.logger.Info("start instruction issued", zap.String("target", target))
	}
	return nil
}

// ListTargets enumerates VM names in a resource group, sorted for
// deterministic fleet reports.
func (c *Client) ListTargets(ctx context.Context, resourceGroup string) ([]string, error) {
	if resourceGroup == "" {
		resourceGroup = c.resourceGroup
	}
	out, err := c.runner.Run(ctx, "vm", "list",
		"--resource-group", resourceGroup,
		"--query", "[].name",
		"--output", "json")
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", cloud.ErrResourceLookup, resourceGroup, err)
	}
	var names []string
	if err := json.Unmarshal(out, &names); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", cloud.ErrResourceLookup, resourceGroup, err)
	}
	sort.Strings(names)
	return names, nil
}

// offsetArg renders a duration the way the CLI expects look-back offsets,
// e.g. "1h", "90m". Sub-minute windows round up to one minute.
func offsetArg(window time.Duration) string {
	if window <= 0 {
		window = cloud.DefaultWindow
	}
	if window%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(window/time.Hour))
	}
	mins := int((window + time.Minute - 1) / time.Minute)
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("%dm", mins)
}
