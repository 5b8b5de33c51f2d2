// Package wayland is a minimal wayland client: enough of the core protocol to
// enumerate globals, bind them and wait for the compositor to settle.
// File descriptor passing is not supported.
package wayland

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// wl_display is always object 1
const displayID = 1

const (
	displaySync        = 0
	displayGetRegistry = 1

	displayEventError    = 0
	displayEventDeleteID = 1

	registryBind = 0

	registryEventGlobal       = 0
	registryEventGlobalRemove = 1

	callbackEventDone = 0
)

// ErrClosed is returned when the connection was closed locally
var ErrClosed = errors.New("wayland: connection closed")

// ProtocolError is a fatal wl_display.error sent by the compositor
type ProtocolError struct {
	Object  uint32
	Code    uint32
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wayland: protocol error on object %d (code %d): %s", e.Object, e.Code, e.Message)
}

// EventHandler receives the events addressed to one object
type EventHandler func(msg Message) error

// Conn is a client connection to a compositor.
// It is not safe for concurrent use except for Close.
type Conn struct {
	conn     net.Conn
	timeout  time.Duration
	nextID   uint32
	handlers map[uint32]EventHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the compositor socket at path. A positive timeout bounds
// the connect and every subsequent Roundtrip.
func Dial(path string, timeout time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return NewConn(c, timeout), nil
}

// NewConn wraps an established stream connection
func NewConn(c net.Conn, timeout time.Duration) *Conn {
	conn := &Conn{
		conn:     c,
		timeout:  timeout,
		nextID:   displayID + 1,
		handlers: make(map[uint32]EventHandler),
		closed:   make(chan struct{}),
	}
	conn.handlers[displayID] = conn.handleDisplay
	return conn
}

// Close closes the underlying socket; it unblocks a pending Roundtrip
func (c *Conn) Close() error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// NewID allocates a client-side object id
func (c *Conn) NewID() uint32 {
	id := c.nextID
	c.nextID++
	return id
}

// Handle routes events for object id to h
func (c *Conn) Handle(id uint32, h EventHandler) {
	c.handlers[id] = h
}

// Send writes one request
func (c *Conn) Send(r *Request) error {
	buf, err := r.Bytes()
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(buf); err != nil {
		return c.wrapIOError("write request", err)
	}
	return nil
}

// Roundtrip sends wl_display.sync and dispatches events until the matching
// done event arrives, i.e. until every request sent before it was processed.
func (c *Conn) Roundtrip() error {
	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return c.wrapIOError("set deadline", err)
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	callback := c.NewID()
	done := false
	c.Handle(callback, func(msg Message) error {
		if msg.Opcode == callbackEventDone {
			done = true
		}
		return nil
	})

	if err := c.Send(NewRequest(displayID, displaySync).Uint(callback)); err != nil {
		return err
	}

	for !done {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			return c.wrapIOError("read event", err)
		}
		if err := c.dispatch(msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) dispatch(msg Message) error {
	h, ok := c.handlers[msg.Object]
	if !ok {
		// Events for objects we never bound or already released
		return nil
	}
	return h(msg)
}

func (c *Conn) handleDisplay(msg Message) error {
	d := NewDecoder(msg)
	switch msg.Opcode {
	case displayEventError:
		object, err := d.Uint()
		if err != nil {
			return err
		}
		code, err := d.Uint()
		if err != nil {
			return err
		}
		text, err := d.String()
		if err != nil {
			return err
		}
		return &ProtocolError{Object: object, Code: code, Message: text}
	case displayEventDeleteID:
		id, err := d.Uint()
		if err != nil {
			return err
		}
		delete(c.handlers, id)
	}
	return nil
}

func (c *Conn) wrapIOError(op string, err error) error {
	select {
	case <-c.closed:
		return fmt.Errorf("wayland: %s: %w", op, ErrClosed)
	default:
		return fmt.Errorf("wayland: %s: %w", op, err)
	}
}

// Global is an interface advertised through wl_registry
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Registry is a bound wl_registry
type Registry struct {
	conn     *Conn
	id       uint32
	globals  map[uint32]Global
	onGlobal func(Global) error
}

// GetRegistry requests the global registry. onGlobal, if not nil, runs for
// every global announced while events are dispatched.
func (c *Conn) GetRegistry(onGlobal func(Global) error) (*Registry, error) {
	r := &Registry{
		conn:     c,
		id:       c.NewID(),
		globals:  make(map[uint32]Global),
		onGlobal: onGlobal,
	}
	c.Handle(r.id, r.handle)

	if err := c.Send(NewRequest(displayID, displayGetRegistry).Uint(r.id)); err != nil {
		return nil, err
	}
	return r, nil
}

// Bind binds global name to a new client object and returns its id
func (r *Registry) Bind(name uint32, iface string, version uint32) (uint32, error) {
	id := r.conn.NewID()
	req := NewRequest(r.id, registryBind).
		Uint(name).
		String(iface).
		Uint(version).
		Uint(id)
	if err := r.conn.Send(req); err != nil {
		return 0, err
	}
	return id, nil
}

// Lookup returns the first announced global implementing iface
func (r *Registry) Lookup(iface string) (Global, bool) {
	var (
		found Global
		ok    bool
	)
	for _, g := range r.globals {
		if g.Interface == iface && (!ok || g.Name < found.Name) {
			found, ok = g, true
		}
	}
	return found, ok
}

func (r *Registry) handle(msg Message) error {
	d := NewDecoder(msg)
	switch msg.Opcode {
	case registryEventGlobal:
		name, err := d.Uint()
		if err != nil {
			return err
		}
		iface, err := d.String()
		if err != nil {
			return err
		}
		version, err := d.Uint()
		if err != nil {
			return err
		}
		g := Global{Name: name, Interface: iface, Version: version}
		r.globals[name] = g
		if r.onGlobal != nil {
			return r.onGlobal(g)
		}
	case registryEventGlobalRemove:
		name, err := d.Uint()
		if err != nil {
			return err
		}
		delete(r.globals, name)
	}
	return nil
}
