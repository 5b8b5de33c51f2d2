package stream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/gamescope-portal/internal/config"
	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/bryanchriswhite/gamescope-portal/internal/wayland"
)

// DefaultDisplay is gamescope's wayland socket name when none is configured
const DefaultDisplay = "gamescope-0"

// gamescope_pipewire protocol, see gamescope's protocol/gamescope-pipewire.xml
const (
	gamescopePipewireInterface = "gamescope_pipewire"
	gamescopePipewireVersion   = 1

	// stream_node(uint node_id)
	streamNodeEvent = 0
)

// WaylandResolver asks gamescope's wayland server for the node id through
// the gamescope_pipewire extension.
type WaylandResolver struct {
	display string
	timeout time.Duration
	getenv  func(string) string
}

// NewWaylandResolver creates a resolver from cfg.
// Environment variables are read on every Resolve call.
func NewWaylandResolver(cfg config.WaylandConfig) *WaylandResolver {
	return &WaylandResolver{
		display: cfg.Display,
		timeout: cfg.RoundtripTimeout,
		getenv:  os.Getenv,
	}
}

// Name returns the strategy name
func (r *WaylandResolver) Name() string {
	return config.StrategyWayland
}

// SocketPath resolves ${XDG_RUNTIME_DIR}/<display>. The display name is the
// configured one, else $GAMESCOPE_WAYLAND_DISPLAY, else gamescope-0.
func (r *WaylandResolver) SocketPath() (string, error) {
	runtimeDir := r.getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("%w: XDG_RUNTIME_DIR is not set", ErrNoCompositor)
	}
	if !filepath.IsAbs(runtimeDir) {
		return "", fmt.Errorf("%w: XDG_RUNTIME_DIR %q is not absolute", ErrNoCompositor, runtimeDir)
	}

	display := r.display
	if display == "" {
		display = r.getenv("GAMESCOPE_WAYLAND_DISPLAY")
	}
	if display == "" {
		display = DefaultDisplay
	}
	if filepath.IsAbs(display) {
		return display, nil
	}
	return filepath.Join(runtimeDir, display), nil
}

// Resolve connects to gamescope, binds gamescope_pipewire and waits for its
// stream_node event.
func (r *WaylandResolver) Resolve(ctx context.Context) (uint32, error) {
	log := logger.WithComponent("wayland-resolver")

	path, err := r.SocketPath()
	if err != nil {
		return 0, err
	}

	conn, err := wayland.Dial(path, r.timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoCompositor, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var (
		registry   *wayland.Registry
		bound      bool
		advertised bool
		nodeID     uint32
	)

	registry, err = conn.GetRegistry(func(g wayland.Global) error {
		if g.Interface != gamescopePipewireInterface || bound {
			return nil
		}
		id, err := registry.Bind(g.Name, g.Interface, min(g.Version, gamescopePipewireVersion))
		if err != nil {
			return err
		}
		conn.Handle(id, func(msg wayland.Message) error {
			if msg.Opcode != streamNodeEvent {
				return nil
			}
			v, err := wayland.NewDecoder(msg).Uint()
			if err != nil {
				return err
			}
			nodeID, advertised = v, true
			return nil
		})
		bound = true
		return nil
	})
	if err != nil {
		return 0, r.dispatchError(ctx, err)
	}

	// First roundtrip collects the advertised globals
	if err := conn.Roundtrip(); err != nil {
		return 0, r.dispatchError(ctx, err)
	}
	if !bound {
		return 0, ErrCapabilityNotFound
	}

	// Second roundtrip processes the events of the bound gamescope_pipewire object
	if err := conn.Roundtrip(); err != nil {
		return 0, r.dispatchError(ctx, err)
	}
	if !advertised {
		return 0, ErrIdentifierNotAdvertised
	}

	log.Debug().
		Str("socket", path).
		Uint32("node_id", nodeID).
		Msg("gamescope advertised pipewire node")
	return nodeID, nil
}

func (r *WaylandResolver) dispatchError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrProtocolDispatch, ctxErr)
	}
	return fmt.Errorf("%w: %w", ErrProtocolDispatch, err)
}
