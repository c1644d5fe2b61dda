// Package utils holds small shared helpers.
package utils

import (
	"context"
	"net"
	"sync"
	"time"

	natlib "github.com/libp2p/go-nat"
)

// NAT is an alias to the libp2p NAT interface so the external package does
// not leak beyond this layer.
type NAT = natlib.NAT

var (
	natOnce      sync.Once
	cachedNAT    NAT
	cachedNATErr error
)

// DiscoverNAT locates the venue gateway via UPnP or NAT-PMP. The result is
// cached for the process lifetime to avoid repeated SSDP lookups.
func DiscoverNAT(ctx context.Context) (NAT, error) {
	natOnce.Do(func() {
		c, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		cachedNAT, cachedNATErr = natlib.DiscoverGateway(c)
	})
	return cachedNAT, cachedNATErr
}

// GetExternalIP returns the external address of the discovered gateway, for
// registering the alert webhook endpoint with the monitoring pipeline.
func GetExternalIP(ctx context.Context) (net.IP, error) {
	n, err := DiscoverNAT(ctx)
	if err != nil || n == nil {
		return nil, err
	}
	return n.GetExternalAddress()
}

// AddOrRefreshMapping ensures a port mapping exists for the API listener so
// cloud alert webhooks can reach an operator box behind venue NAT. Returns
// the external port the gateway assigned.
func AddOrRefreshMapping(ctx context.Context, protocol string, internalPort int, description string, lifetime time.Duration) (int, error) {
	n, err := DiscoverNAT(ctx)
	if err != nil || n == nil {
		return 0, err
	}
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return n.AddPortMapping(c, protocol, internalPort, description, lifetime)
}

// DeleteMapping removes the listener's port mapping on shutdown.
func DeleteMapping(ctx context.Context, protocol string, internalPort int) error {
	n, err := DiscoverNAT(ctx)
	if err != nil || n == nil {
		return err
	}
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return n.DeletePortMapping(c, protocol, internalPort)
}
