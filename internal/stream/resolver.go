// Package stream discovers the PipeWire node id of gamescope's capture stream.
//
// Two interchangeable strategies implement Resolver: a handshake with the
// gamescope wayland server (WaylandResolver) and a scan of the PipeWire
// registry (ScanResolver). Every call performs a fresh discovery; nothing is
// cached between calls.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/gamescope-portal/internal/config"
	"github.com/bryanchriswhite/gamescope-portal/internal/pipewire"
)

// Resolver discovers the node id of the compositor's shareable output
type Resolver interface {
	// Resolve returns the node id or a discovery error. It always terminates.
	Resolve(ctx context.Context) (uint32, error)

	// Name returns the strategy name
	Name() string
}

var (
	// ErrNoCompositor means the gamescope wayland socket could not be located or connected
	ErrNoCompositor = errors.New("failed to connect to wayland socket")
	// ErrProtocolDispatch means the transport failed while waiting for the compositor to settle
	ErrProtocolDispatch = errors.New("wayland protocol dispatch error")
	// ErrCapabilityNotFound means the compositor does not advertise gamescope_pipewire
	ErrCapabilityNotFound = errors.New("gamescope pipewire global object not found")
	// ErrIdentifierNotAdvertised means gamescope_pipewire was bound but sent no node id
	ErrIdentifierNotAdvertised = errors.New("gamescope pipewire node ID not advertised")
	// ErrDiscoveryTimeout means the registry scan did not see the node in time
	ErrDiscoveryTimeout = errors.New("timed out waiting for gamescope pipewire node")
	// ErrRegistryUnavailable means the registry scan stopped before finding the node
	ErrRegistryUnavailable = errors.New("pipewire registry scan failed")
)

// New builds the resolver selected by cfg.Strategy
func New(cfg config.StreamConfig) (Resolver, error) {
	switch cfg.Strategy {
	case config.StrategyWayland, "":
		return NewWaylandResolver(cfg.Wayland), nil
	case config.StrategyPipeWire:
		monitor := pipewire.NewDumpMonitor(cfg.PipeWire.Command, cfg.PipeWire.Args...)
		return NewScanResolver(monitor, cfg.PipeWire.NodeName, cfg.PipeWire.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown stream strategy %q", cfg.Strategy)
	}
}
