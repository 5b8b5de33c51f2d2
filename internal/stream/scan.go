package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/gamescope-portal/internal/config"
	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/bryanchriswhite/gamescope-portal/internal/pipewire"
	"github.com/sourcegraph/conc"
)

// DefaultScanTimeout bounds a registry scan
const DefaultScanTimeout = time.Second

// ScanResolver watches the PipeWire registry for the node named nodeName.
//
// The registry client blocks, so it runs on its own goroutine. The caller
// receives the id over a one-shot channel, signals the worker to stop over a
// second channel and joins it before returning, whatever the outcome.
type ScanResolver struct {
	monitor  pipewire.Monitor
	nodeName string
	timeout  time.Duration
}

// NewScanResolver creates a registry scan resolver
func NewScanResolver(monitor pipewire.Monitor, nodeName string, timeout time.Duration) *ScanResolver {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &ScanResolver{
		monitor:  monitor,
		nodeName: nodeName,
		timeout:  timeout,
	}
}

// Name returns the strategy name
func (r *ScanResolver) Name() string {
	return config.StrategyPipeWire
}

// Resolve waits at most the configured timeout for the node to be announced
func (r *ScanResolver) Resolve(ctx context.Context) (uint32, error) {
	log := logger.WithComponent("scan-resolver")

	found := make(chan uint32, 1)
	stop := make(chan struct{})
	exited := make(chan struct{})

	var (
		wg       conc.WaitGroup
		watchErr error
	)
	wg.Go(func() {
		defer close(exited)
		watchErr = r.monitor.Watch(stop, func(obj pipewire.Object) {
			if obj.Props[pipewire.KeyNodeName] != r.nodeName {
				return
			}
			select {
			case found <- obj.ID:
			default:
			}
		})
	})

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var (
		nodeID  uint32
		matched bool
		err     error
	)
	select {
	case nodeID = <-found:
		matched = true
	case <-timer.C:
		err = ErrDiscoveryTimeout
	case <-ctx.Done():
		err = ctx.Err()
	case <-exited:
		// A match may have been delivered right before the worker returned
		select {
		case nodeID = <-found:
			matched = true
		default:
			err = fmt.Errorf("%w: %v", ErrRegistryUnavailable, watchErr)
		}
	}

	close(stop)
	if recovered := wg.WaitAndRecover(); recovered != nil {
		log.Error().Str("panic", recovered.String()).Msg("Registry monitor panicked")
		if !matched {
			err = fmt.Errorf("%w: %w", ErrRegistryUnavailable, recovered.AsError())
		}
	}

	if !matched {
		log.Debug().Err(err).Str("node_name", r.nodeName).Msg("Registry scan failed")
		return 0, err
	}

	log.Debug().
		Str("node_name", r.nodeName).
		Uint32("node_id", nodeID).
		Msg("Found pipewire node in registry")
	return nodeID, nil
}
