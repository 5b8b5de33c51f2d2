package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/gamescope-portal/internal/config"
	"github.com/bryanchriswhite/gamescope-portal/internal/portal"
	"github.com/bryanchriswhite/gamescope-portal/internal/session"
	"github.com/bryanchriswhite/gamescope-portal/internal/stream"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exportKey struct {
	path  dbus.ObjectPath
	iface string
}

// fakeBus records exported objects. onExport, when set, runs after each
// object is exported.
type fakeBus struct {
	mu       sync.Mutex
	objects  map[exportKey]interface{}
	history  []exportKey
	onExport func(exportKey)
}

func newFakeBus() *fakeBus {
	return &fakeBus{objects: make(map[exportKey]interface{})}
}

func (f *fakeBus) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	f.mu.Lock()
	key := exportKey{path, iface}
	if v == nil {
		delete(f.objects, key)
		f.mu.Unlock()
		return nil
	}
	f.objects[key] = v
	f.history = append(f.history, key)
	hook := f.onExport
	f.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return nil
}

func (f *fakeBus) get(path dbus.ObjectPath, iface string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[exportKey{path, iface}]
}

func (f *fakeBus) exported(path dbus.ObjectPath, iface string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range f.history {
		if key.path == path && key.iface == iface {
			return true
		}
	}
	return false
}

// blockingResolver blocks until ctx is done or release is closed
type blockingResolver struct {
	nodeID  uint32
	err     error
	started chan struct{}
	release chan struct{}
}

func (r *blockingResolver) Resolve(ctx context.Context) (uint32, error) {
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return r.nodeID, r.err
}

func (r *blockingResolver) Name() string { return "fake" }

type failingHelper struct{ err error }

func (h failingHelper) Screenshot(ctx context.Context, dest string) error { return h.err }

const (
	requestHandle = dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/t1")
	sessionHandle = dbus.ObjectPath("/org/freedesktop/portal/desktop/session/1_42/s1")
)

func newTestBackend(t *testing.T, resolver stream.Resolver, helper portal.Helper) (*Backend, *fakeBus) {
	t.Helper()
	bus := newFakeBus()
	sc := portal.NewScreenCast(session.NewRegistry(), resolver)
	shot := portal.NewScreenshot(helper, config.ScreenshotConfig{Directory: t.TempDir()})
	return New(context.Background(), bus, sc, shot, portal.NewAccess()), bus
}

func TestToDBusError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"exists", fmt.Errorf("%w: x", session.ErrAlreadyExists), ErrorExists},
		{"not found", fmt.Errorf("%w: x", session.ErrNotFound), ErrorNotFound},
		{"unsupported", portal.ErrUnsupported, ErrorNotFound},
		{"helper", fmt.Errorf("%w: exit status 1", portal.ErrHelperFailed), ErrorFailed},
		{"stream", fmt.Errorf("%w: %w", portal.ErrStreamUnavailable, stream.ErrNoCompositor), ErrorFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbusErr := toDBusError(tt.err)
			assert.Equal(t, tt.want, dbusErr.Name)
			require.Len(t, dbusErr.Body, 1)
			assert.Equal(t, tt.err.Error(), dbusErr.Body[0])
		})
	}
}

func TestEncodeStreams_Signature(t *testing.T) {
	streams := encodeStreams([]portal.Stream{{NodeID: 73, SourceType: portal.SourceTypeMonitor}})

	assert.Equal(t, "a(ua{sv})", dbus.SignatureOf(streams).String())
	require.Len(t, streams, 1)
	assert.Equal(t, uint32(73), streams[0].NodeID)
	assert.Equal(t, uint32(1), streams[0].Props["source_type"].Value())
}

func TestScreenCast_Lifecycle(t *testing.T) {
	b, bus := newTestBackend(t, &blockingResolver{nodeID: 73}, failingHelper{})
	h := &screenCastHandler{b}

	resp, results, dbusErr := h.CreateSession(requestHandle, sessionHandle, "com.obsproject.Studio", nil)
	require.Nil(t, dbusErr)
	assert.Equal(t, ResponseSuccess, resp)
	assert.Equal(t, string(sessionHandle), results["session_id"].Value())
	assert.True(t, bus.exported(requestHandle, RequestInterface), "request object exported during the call")
	assert.Nil(t, bus.get(requestHandle, RequestInterface), "request object removed after the call")
	require.NotNil(t, bus.get(sessionHandle, SessionInterface))

	resp, _, dbusErr = h.SelectSources(requestHandle, sessionHandle, "com.obsproject.Studio", map[string]dbus.Variant{
		"types":    dbus.MakeVariant(uint32(portal.SourceTypeWindow)),
		"multiple": dbus.MakeVariant(true),
	})
	require.Nil(t, dbusErr)
	assert.Equal(t, ResponseSuccess, resp)

	resp, results, dbusErr = h.Start(requestHandle, sessionHandle, "com.obsproject.Studio", "", nil)
	require.Nil(t, dbusErr)
	assert.Equal(t, ResponseSuccess, resp)
	streams, ok := results["streams"].Value().([]dbusStream)
	require.True(t, ok)
	require.Len(t, streams, 1)
	assert.Equal(t, uint32(73), streams[0].NodeID)

	sess := bus.get(sessionHandle, SessionInterface).(*sessionObject)
	require.Nil(t, sess.Close())
	assert.Nil(t, bus.get(sessionHandle, SessionInterface))

	_, _, dbusErr = h.Start(requestHandle, sessionHandle, "com.obsproject.Studio", "", nil)
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrorNotFound, dbusErr.Name)
}

func TestScreenCast_DuplicateSession(t *testing.T) {
	b, _ := newTestBackend(t, &blockingResolver{}, failingHelper{})
	h := &screenCastHandler{b}

	_, _, dbusErr := h.CreateSession(requestHandle, sessionHandle, "", nil)
	require.Nil(t, dbusErr)

	_, _, dbusErr = h.CreateSession(requestHandle, sessionHandle, "", nil)
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrorExists, dbusErr.Name)
}

func TestScreenCast_StartFailure(t *testing.T) {
	b, _ := newTestBackend(t, &blockingResolver{err: stream.ErrCapabilityNotFound}, failingHelper{})
	h := &screenCastHandler{b}

	_, _, dbusErr := h.CreateSession(requestHandle, sessionHandle, "", nil)
	require.Nil(t, dbusErr)

	_, _, dbusErr = h.Start(requestHandle, sessionHandle, "", "", nil)
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrorFailed, dbusErr.Name)
	assert.Contains(t, dbusErr.Body[0], "gamescope stream not available: ")
}

func TestRequestClose_CancelsCall(t *testing.T) {
	resolver := &blockingResolver{nodeID: 73, started: make(chan struct{}), release: make(chan struct{})}
	b, bus := newTestBackend(t, resolver, failingHelper{})
	h := &screenCastHandler{b}

	_, _, dbusErr := h.CreateSession(requestHandle, sessionHandle, "", nil)
	require.Nil(t, dbusErr)

	type reply struct {
		resp    uint32
		results map[string]dbus.Variant
		err     *dbus.Error
	}
	done := make(chan reply, 1)
	go func() {
		resp, results, err := h.Start(requestHandle, sessionHandle, "", "", nil)
		done <- reply{resp, results, err}
	}()

	select {
	case <-resolver.started:
	case <-time.After(2 * time.Second):
		t.Fatal("discovery never started")
	}

	req, ok := bus.get(requestHandle, RequestInterface).(*request)
	require.True(t, ok)
	require.Nil(t, req.Close())

	select {
	case r := <-done:
		assert.Nil(t, r.err)
		assert.Equal(t, ResponseCancelled, r.resp)
		assert.Empty(t, r.results)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Close")
	}
}

func TestCreateSession_ClosedRequestDiscardsSession(t *testing.T) {
	b, bus := newTestBackend(t, &blockingResolver{}, failingHelper{})
	h := &screenCastHandler{b}

	bus.onExport = func(key exportKey) {
		if key.iface != SessionInterface {
			return
		}
		if req, ok := bus.get(requestHandle, RequestInterface).(*request); ok {
			req.Close()
		}
	}

	resp, results, dbusErr := h.CreateSession(requestHandle, sessionHandle, "", nil)
	require.Nil(t, dbusErr)
	assert.Equal(t, ResponseCancelled, resp)
	assert.Empty(t, results)
	assert.Nil(t, bus.get(sessionHandle, SessionInterface), "session object must be unexported")

	bus.onExport = nil
	resp, _, dbusErr = h.CreateSession(requestHandle, sessionHandle, "", nil)
	require.Nil(t, dbusErr, "handle must be free for reuse")
	assert.Equal(t, ResponseSuccess, resp)
	assert.NotNil(t, bus.get(sessionHandle, SessionInterface))
}

func TestRequestClose_AfterAnswerIsIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := &request{handle: requestHandle, cancel: cancel}

	require.True(t, req.answer())
	require.Nil(t, req.Close())
	assert.True(t, req.answer())
	assert.NoError(t, ctx.Err())
}

func TestScreenshot_HelperFailure(t *testing.T) {
	b, _ := newTestBackend(t, &blockingResolver{}, failingHelper{err: errors.New("exit status 1")})
	h := &screenshotHandler{b}

	_, _, dbusErr := h.Screenshot(requestHandle, "org.example.App", "", nil)
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrorFailed, dbusErr.Name)
	assert.Contains(t, dbusErr.Body[0], "failed to take screenshot")
}

func TestScreenshot_ReturnsURI(t *testing.T) {
	b, _ := newTestBackend(t, &blockingResolver{}, failingHelper{})
	h := &screenshotHandler{b}

	resp, results, dbusErr := h.Screenshot(requestHandle, "org.example.App", "", map[string]dbus.Variant{
		"interactive": dbus.MakeVariant(true),
	})
	require.Nil(t, dbusErr)
	assert.Equal(t, ResponseSuccess, resp)
	uri, ok := results["uri"].Value().(string)
	require.True(t, ok)
	assert.Regexp(t, `^file:///.+/Screenshot_\d{8}_\d{6}\.png$`, uri)
}

func TestPickColor_NotFound(t *testing.T) {
	b, _ := newTestBackend(t, &blockingResolver{}, failingHelper{})
	h := &screenshotHandler{b}

	_, _, dbusErr := h.PickColor(requestHandle, "", "", nil)
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrorNotFound, dbusErr.Name)
}

func TestAccessDialog_Granted(t *testing.T) {
	b, _ := newTestBackend(t, &blockingResolver{}, failingHelper{})
	h := &accessHandler{b}

	resp, results, dbusErr := h.AccessDialog(requestHandle, "org.example.App", "", "Title", "", "", nil)
	require.Nil(t, dbusErr)
	assert.Equal(t, ResponseSuccess, resp)
	assert.NotNil(t, results)
}

func TestOptions_Fallbacks(t *testing.T) {
	opts := map[string]dbus.Variant{
		"types":    dbus.MakeVariant("not a uint"),
		"multiple": dbus.MakeVariant(true),
	}

	assert.Equal(t, uint32(1), uint32Option(opts, "types", 1))
	assert.Equal(t, uint32(4), uint32Option(opts, "missing", 4))
	assert.True(t, boolOption(opts, "multiple", false))
	assert.Equal(t, "x", stringOption(opts, "restore_token", "x"))
}
