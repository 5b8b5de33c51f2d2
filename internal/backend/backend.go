package backend

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/bryanchriswhite/gamescope-portal/internal/portal"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// D-Bus constants of the portal backend
const (
	ObjectPath = dbus.ObjectPath("/org/freedesktop/portal/desktop")

	ScreenCastInterface = "org.freedesktop.impl.portal.ScreenCast"
	ScreenshotInterface = "org.freedesktop.impl.portal.Screenshot"
	AccessInterface     = "org.freedesktop.impl.portal.Access"
	RequestInterface    = "org.freedesktop.impl.portal.Request"
	SessionInterface    = "org.freedesktop.impl.portal.Session"

	ScreenCastVersion = 5
	ScreenshotVersion = 2
	AccessVersion     = 1
)

// Portal error names
const (
	ErrorFailed   = "org.freedesktop.portal.Error.Failed"
	ErrorNotFound = "org.freedesktop.portal.Error.NotFound"
	ErrorExists   = "org.freedesktop.portal.Error.Exists"
)

// Response codes of portal requests
const (
	ResponseSuccess   uint32 = 0
	ResponseCancelled uint32 = 1
	ResponseOther     uint32 = 2
)

// Bus is the part of a D-Bus connection used to export objects.
// Exporting nil removes the object.
type Bus interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
}

// Backend exposes the portal implementations on D-Bus
type Backend struct {
	ctx        context.Context
	bus        Bus
	screenCast *portal.ScreenCast
	screenshot *portal.Screenshot
	access     *portal.Access
}

// New creates a backend. ctx bounds every call it serves.
func New(ctx context.Context, bus Bus, screenCast *portal.ScreenCast, screenshot *portal.Screenshot, access *portal.Access) *Backend {
	return &Backend{
		ctx:        ctx,
		bus:        bus,
		screenCast: screenCast,
		screenshot: screenshot,
		access:     access,
	}
}

// Register exports all interfaces on conn and acquires busName.
// Failing to become the primary owner of busName is an error.
func (b *Backend) Register(conn *dbus.Conn, busName string) error {
	log := logger.WithComponent("backend")

	handlers := []struct {
		handler interface{}
		iface   string
	}{
		{&screenCastHandler{b}, ScreenCastInterface},
		{&screenshotHandler{b}, ScreenshotInterface},
		{&accessHandler{b}, AccessInterface},
	}
	for _, h := range handlers {
		if err := conn.Export(h.handler, ObjectPath, h.iface); err != nil {
			return fmt.Errorf("failed to export %s: %w", h.iface, err)
		}
	}

	props, err := prop.Export(conn, ObjectPath, b.properties())
	if err != nil {
		return fmt.Errorf("failed to export properties: %w", err)
	}

	node := introspectNode(props)
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspection data: %w", err)
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", busName)
	}

	log.Info().Str("bus_name", busName).Str("path", string(ObjectPath)).Msg("Portal backend registered")
	return nil
}

func (b *Backend) properties() prop.Map {
	return prop.Map{
		ScreenCastInterface: {
			"AvailableSourceTypes": {Value: uint32(b.screenCast.AvailableSourceTypes()), Emit: prop.EmitFalse},
			"AvailableCursorModes": {Value: uint32(b.screenCast.AvailableCursorModes()), Emit: prop.EmitFalse},
			"version":              {Value: uint32(ScreenCastVersion), Emit: prop.EmitConst},
		},
		ScreenshotInterface: {
			"version": {Value: uint32(ScreenshotVersion), Emit: prop.EmitConst},
		},
		AccessInterface: {
			"version": {Value: uint32(AccessVersion), Emit: prop.EmitConst},
		},
	}
}

// Request states
const (
	requestActive int32 = iota
	requestClosed
	requestAnswered
)

// request is the transient Request object of one method call
type request struct {
	handle dbus.ObjectPath
	cancel context.CancelFunc
	state  atomic.Int32
}

// Close cancels the call the request belongs to. It has no effect once the
// call has been answered.
func (r *request) Close() *dbus.Error {
	if r.state.CompareAndSwap(requestActive, requestClosed) {
		r.cancel()
	}
	return nil
}

// answer marks the call answered. It reports false when the caller closed
// the request first, in which case the call must answer cancelled.
func (r *request) answer() bool {
	r.state.CompareAndSwap(requestActive, requestAnswered)
	return r.state.Load() == requestAnswered
}

// begin exports a Request object at handle and returns the call context and
// a logger tagged with a fresh request id. end must be called when the call
// returns.
func (b *Backend) begin(handle dbus.ObjectPath, method string) (context.Context, *request, *zerolog.Logger) {
	ctx, cancel := context.WithCancel(b.ctx)
	req := &request{handle: handle, cancel: cancel}

	log := logger.WithComponent("backend").With().
		Str("request_id", uuid.NewString()).
		Str("method", method).
		Str("handle", string(handle)).
		Logger()

	if err := b.bus.Export(req, handle, RequestInterface); err != nil {
		log.Warn().Err(err).Msg("Failed to export request object")
	}
	log.Debug().Msg("Request started")
	return ctx, req, &log
}

func (b *Backend) end(req *request) {
	b.bus.Export(nil, req.handle, RequestInterface)
	req.cancel()
}

// respond turns an operation result into the (response, results, error)
// triple of a portal method.
func respond(req *request, log *zerolog.Logger, results map[string]dbus.Variant, err error) (uint32, map[string]dbus.Variant, *dbus.Error) {
	if !req.answer() {
		log.Info().Msg("Request cancelled by caller")
		return ResponseCancelled, map[string]dbus.Variant{}, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("Request failed")
		return ResponseOther, nil, toDBusError(err)
	}
	if results == nil {
		results = map[string]dbus.Variant{}
	}
	return ResponseSuccess, results, nil
}

// toDBusError maps an operation error onto a portal error name
func toDBusError(err error) *dbus.Error {
	name := ErrorFailed
	switch portal.Classify(err) {
	case portal.KindExists:
		name = ErrorExists
	case portal.KindNotFound:
		name = ErrorNotFound
	}
	return dbus.NewError(name, []interface{}{err.Error()})
}
