package portal

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/bryanchriswhite/gamescope-portal/internal/session"
	"github.com/bryanchriswhite/gamescope-portal/internal/stream"
)

// ScreenCast mediates screen cast sessions. A session handle is open
// between a successful CreateSession and a successful SessionClosed; every
// other operation requires an open handle.
type ScreenCast struct {
	sessions *session.Registry
	resolver stream.Resolver
}

// NewScreenCast creates a mediator over sessions and resolver
func NewScreenCast(sessions *session.Registry, resolver stream.Resolver) *ScreenCast {
	return &ScreenCast{
		sessions: sessions,
		resolver: resolver,
	}
}

// AvailableSourceTypes is the static source type advertisement
func (s *ScreenCast) AvailableSourceTypes() SourceType {
	return SourceTypeMonitor | SourceTypeWindow
}

// AvailableCursorModes is the static cursor mode advertisement
func (s *ScreenCast) AvailableCursorModes() CursorMode {
	return CursorModeHidden | CursorModeEmbedded | CursorModeMetadata
}

// CreateSession opens req.SessionHandle
func (s *ScreenCast) CreateSession(ctx context.Context, req CreateSessionRequest) error {
	log := logger.WithComponent("screencast")

	if err := s.sessions.Create(req.SessionHandle); err != nil {
		log.Warn().Err(err).Str("session", req.SessionHandle).Msg("ScreenCast session creation refused")
		return err
	}

	log.Info().
		Str("session", req.SessionHandle).
		Str("app_id", req.AppID).
		Msg("ScreenCast session created")
	return nil
}

// SelectSources validates the session. The requested options are logged but
// not applied: the stream is always the full gamescope output.
func (s *ScreenCast) SelectSources(ctx context.Context, sessionHandle, appID string, opts SelectSourcesOptions) error {
	log := logger.WithComponent("screencast")

	if !s.sessions.Contains(sessionHandle) {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionHandle)
	}

	// TODO: honor opts.Types and opts.Multiple once gamescope exposes per-window streams
	log.Info().
		Str("session", sessionHandle).
		Str("app_id", appID).
		Uint32("types", uint32(opts.Types)).
		Bool("multiple", opts.Multiple).
		Uint32("cursor_mode", uint32(opts.CursorMode)).
		Uint32("persist_mode", uint32(opts.PersistMode)).
		Msg("ScreenCast sources selection")
	return nil
}

// StartCast resolves the gamescope node and returns it as the only stream
func (s *ScreenCast) StartCast(ctx context.Context, sessionHandle, appID string, opts StartCastOptions) ([]Stream, error) {
	log := logger.WithComponent("screencast")

	if !s.sessions.Contains(sessionHandle) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, sessionHandle)
	}

	nodeID, err := s.resolver.Resolve(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStreamUnavailable, err)
		log.Error().
			Err(err).
			Str("session", sessionHandle).
			Str("strategy", s.resolver.Name()).
			Msg("ScreenCast start failed")
		return nil, err
	}

	log.Info().
		Str("session", sessionHandle).
		Str("app_id", appID).
		Uint32("node_id", nodeID).
		Msg("ScreenCast starting with pipewire node")

	return []Stream{{NodeID: nodeID, SourceType: SourceTypeMonitor}}, nil
}

// SessionClosed closes sessionHandle
func (s *ScreenCast) SessionClosed(ctx context.Context, sessionHandle string) error {
	log := logger.WithComponent("screencast")

	if err := s.sessions.Close(sessionHandle); err != nil {
		log.Warn().Err(err).Str("session", sessionHandle).Msg("ScreenCast session close refused")
		return err
	}

	log.Info().Str("session", sessionHandle).Msg("ScreenCast session closed")
	return nil
}
