package backend

import (
	"github.com/bryanchriswhite/gamescope-portal/internal/portal"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// dbusStream is the D-Bus form (ua{sv}) of a portal stream
type dbusStream struct {
	NodeID uint32
	Props  map[string]dbus.Variant
}

// encodeStreams converts streams to the a(ua{sv}) "streams" result
func encodeStreams(streams []portal.Stream) []dbusStream {
	out := make([]dbusStream, 0, len(streams))
	for _, s := range streams {
		out = append(out, dbusStream{
			NodeID: s.NodeID,
			Props: map[string]dbus.Variant{
				"source_type": dbus.MakeVariant(uint32(s.SourceType)),
			},
		})
	}
	return out
}

// rgb is the D-Bus form (ddd) of a picked color
type rgb struct {
	Red, Green, Blue float64
}

// sessionObject is the Session object exported at a screen cast session handle
type sessionObject struct {
	b      *Backend
	handle dbus.ObjectPath
}

// Close ends the screen cast session
func (s *sessionObject) Close() *dbus.Error {
	err := s.b.screenCast.SessionClosed(s.b.ctx, string(s.handle))
	s.b.bus.Export(nil, s.handle, SessionInterface)
	if err != nil {
		return toDBusError(err)
	}
	return nil
}

type screenCastHandler struct {
	b *Backend
}

// CreateSession implements org.freedesktop.impl.portal.ScreenCast.CreateSession
func (h *screenCastHandler) CreateSession(handle, sessionHandle dbus.ObjectPath, appID string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	ctx, req, log := h.b.begin(handle, "CreateSession")
	defer h.b.end(req)

	err := h.b.screenCast.CreateSession(ctx, portal.CreateSessionRequest{
		Handle:        string(handle),
		SessionHandle: string(sessionHandle),
		AppID:         appID,
	})
	if err == nil {
		if exportErr := h.b.bus.Export(&sessionObject{b: h.b, handle: sessionHandle}, sessionHandle, SessionInterface); exportErr != nil {
			log.Warn().Err(exportErr).Str("session", string(sessionHandle)).Msg("Failed to export session object")
		}
		// A caller that closed the request never learns the session exists
		if !req.answer() {
			h.discardSession(sessionHandle, log)
		}
	}

	return respond(req, log, map[string]dbus.Variant{
		"session_id": dbus.MakeVariant(string(sessionHandle)),
	}, err)
}

func (h *screenCastHandler) discardSession(sessionHandle dbus.ObjectPath, log *zerolog.Logger) {
	if err := h.b.screenCast.SessionClosed(h.b.ctx, string(sessionHandle)); err != nil {
		log.Warn().Err(err).Str("session", string(sessionHandle)).Msg("Failed to discard cancelled session")
	}
	h.b.bus.Export(nil, sessionHandle, SessionInterface)
}

// SelectSources implements org.freedesktop.impl.portal.ScreenCast.SelectSources
func (h *screenCastHandler) SelectSources(handle, sessionHandle dbus.ObjectPath, appID string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	ctx, req, log := h.b.begin(handle, "SelectSources")
	defer h.b.end(req)

	opts := portal.SelectSourcesOptions{
		Types:        portal.SourceType(uint32Option(options, "types", uint32(portal.SourceTypeMonitor))),
		Multiple:     boolOption(options, "multiple", false),
		CursorMode:   portal.CursorMode(uint32Option(options, "cursor_mode", uint32(portal.CursorModeHidden))),
		PersistMode:  portal.PersistMode(uint32Option(options, "persist_mode", uint32(portal.PersistModeNone))),
		RestoreToken: stringOption(options, "restore_token", ""),
	}

	err := h.b.screenCast.SelectSources(ctx, string(sessionHandle), appID, opts)
	return respond(req, log, nil, err)
}

// Start implements org.freedesktop.impl.portal.ScreenCast.Start
func (h *screenCastHandler) Start(handle, sessionHandle dbus.ObjectPath, appID, parentWindow string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	ctx, req, log := h.b.begin(handle, "Start")
	defer h.b.end(req)

	streams, err := h.b.screenCast.StartCast(ctx, string(sessionHandle), appID, portal.StartCastOptions{
		Handle:       string(handle),
		ParentWindow: parentWindow,
	})
	if err != nil {
		return respond(req, log, nil, err)
	}

	return respond(req, log, map[string]dbus.Variant{
		"streams": dbus.MakeVariant(encodeStreams(streams)),
	}, nil)
}

type screenshotHandler struct {
	b *Backend
}

// Screenshot implements org.freedesktop.impl.portal.Screenshot.Screenshot
func (h *screenshotHandler) Screenshot(handle dbus.ObjectPath, appID, parentWindow string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	ctx, req, log := h.b.begin(handle, "Screenshot")
	defer h.b.end(req)

	uri, err := h.b.screenshot.Take(ctx, portal.ScreenshotRequest{
		Handle:       string(handle),
		AppID:        appID,
		ParentWindow: parentWindow,
		Modal:        boolOption(options, "modal", true),
		Interactive:  boolOption(options, "interactive", false),
	})
	if err != nil {
		return respond(req, log, nil, err)
	}

	return respond(req, log, map[string]dbus.Variant{
		"uri": dbus.MakeVariant(uri),
	}, nil)
}

// PickColor implements org.freedesktop.impl.portal.Screenshot.PickColor
func (h *screenshotHandler) PickColor(handle dbus.ObjectPath, appID, parentWindow string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	ctx, req, log := h.b.begin(handle, "PickColor")
	defer h.b.end(req)

	color, err := h.b.screenshot.PickColor(ctx, portal.ScreenshotRequest{
		Handle:       string(handle),
		AppID:        appID,
		ParentWindow: parentWindow,
	})
	if err != nil {
		return respond(req, log, nil, err)
	}

	return respond(req, log, map[string]dbus.Variant{
		"color": dbus.MakeVariant(rgb{color.Red, color.Green, color.Blue}),
	}, nil)
}

type accessHandler struct {
	b *Backend
}

// AccessDialog implements org.freedesktop.impl.portal.Access.AccessDialog
func (h *accessHandler) AccessDialog(handle dbus.ObjectPath, appID, parentWindow, title, subtitle, body string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	ctx, req, log := h.b.begin(handle, "AccessDialog")
	defer h.b.end(req)

	granted, err := h.b.access.AccessDialog(ctx, portal.AccessRequest{
		Handle:       string(handle),
		AppID:        appID,
		ParentWindow: parentWindow,
		Title:        title,
		Subtitle:     subtitle,
		Body:         body,
	})
	if err == nil && !granted {
		log.Info().Str("app_id", appID).Msg("Access denied")
		return ResponseOther, map[string]dbus.Variant{}, nil
	}
	return respond(req, log, nil, err)
}

func uint32Option(options map[string]dbus.Variant, key string, fallback uint32) uint32 {
	if v, ok := options[key]; ok {
		if u, ok := v.Value().(uint32); ok {
			return u
		}
	}
	return fallback
}

func boolOption(options map[string]dbus.Variant, key string, fallback bool) bool {
	if v, ok := options[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return fallback
}

func stringOption(options map[string]dbus.Variant, key string, fallback string) string {
	if v, ok := options[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return fallback
}
