// Package cloud defines the boundary between VMWarden's decision logic and
// the cloud platform that actually hosts the fleet. Implementations live in
// subpackages; the rest of the codebase depends on this interface only.
package cloud

import (
	"context"
	"time"

	"vmwarden/internal/models"
)

// Metric stream names understood by the bundled providers.
const (
	MetricCPUPercent      = "cpu_percent"
	MetricAvailableMemory = "available_memory_bytes"
)

// DefaultWindow is the look-back used when a caller does not supply one.
const DefaultWindow = time.Hour

// Provider is the set of platform operations the checker and remediator
// consume. Every call is a blocking network round-trip and must honor the
// supplied context.
type Provider interface {
	// Status reports the power state of a target. A target that exists but
	// is shut down yields PowerStopped with a nil error; a target that
	// cannot be resolved yields an error wrapping ErrResourceLookup.
	Status(ctx context.Context, target string) (models.PowerState, error)

	// Metric fetches time-ordered samples for one metric stream over the
	// trailing window. An empty slice with a nil error means the stream
	// exists but produced no data. Failures wrap ErrFetchFailed.
	Metric(ctx context.Context, target, metric string, window time.Duration) ([]models.MetricSample, error)

	// HeartbeatCount returns how many liveness records the target emitted
	// during the trailing window. Failures wrap ErrFetchFailed.
	HeartbeatCount(ctx context.Context, target string, window time.Duration) (int, error)

	// Stop issues a power-off instruction. The ack does not imply the
	// target has finished stopping; callers poll Status for confirmation.
	Stop(ctx context.Context, target string) error

	// Start issues a power-on instruction, acked the same way as Stop.
	Start(ctx context.Context, target string) error

	// ListTargets enumerates the target identifiers in a resource group.
	ListTargets(ctx context.Context, resourceGroup string) ([]string, error)
}
