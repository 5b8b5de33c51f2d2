// Package waylandtest provides a scripted in-process compositor for tests.
package waylandtest

import (
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bryanchriswhite/gamescope-portal/internal/wayland"
)

// Server is a fake compositor listening on a unix socket
type Server struct {
	// Globals are announced on every get_registry
	Globals []wayland.Global
	// OnBind returns the events to send once interface iface was bound to
	// the client object id. The events are queued behind the bind request.
	OnBind func(iface string, id uint32) []wayland.Message
	// FailBind makes the server answer a bind with wl_display.error
	FailBind bool
	// IgnoreSync makes the server never answer wl_display.sync
	IgnoreSync bool

	Dir  string
	Name string

	listener net.Listener
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns int
	open  []net.Conn
	binds []string
}

// NewServer starts a server in a fresh temp directory; it is stopped on test cleanup
func NewServer(t testing.TB, globals ...wayland.Global) *Server {
	t.Helper()

	s := &Server{
		Globals: globals,
		Dir:     t.TempDir(),
		Name:    "gamescope-test",
	}
	l, err := net.Listen("unix", filepath.Join(s.Dir, s.Name))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.listener = l

	s.wg.Add(1)
	go s.accept()
	t.Cleanup(func() {
		l.Close()
		s.mu.Lock()
		for _, c := range s.open {
			c.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
	return s
}

// Path is the socket path
func (s *Server) Path() string {
	return filepath.Join(s.Dir, s.Name)
}

// Connections is the number of accepted clients
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Binds lists the interfaces clients bound, in order
func (s *Server) Binds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.binds...)
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		c, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.open = append(s.open, c)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer c.Close()
			s.serve(c)
		}()
	}
}

func (s *Server) serve(c net.Conn) {
	var registry uint32
	for {
		msg, err := wayland.ReadMessage(c)
		if err != nil {
			return
		}
		d := wayland.NewDecoder(msg)

		switch {
		case msg.Object == 1 && msg.Opcode == 0: // sync
			callback, _ := d.Uint()
			if s.IgnoreSync {
				continue
			}
			send(c, wayland.NewRequest(callback, 0).Uint(0))
			send(c, wayland.NewRequest(1, 1).Uint(callback))
		case msg.Object == 1 && msg.Opcode == 1: // get_registry
			registry, _ = d.Uint()
			for _, g := range s.Globals {
				send(c, wayland.NewRequest(registry, 0).Uint(g.Name).String(g.Interface).Uint(g.Version))
			}
		case registry != 0 && msg.Object == registry && msg.Opcode == 0: // bind
			d.Uint()
			iface, _ := d.String()
			d.Uint()
			id, _ := d.Uint()

			s.mu.Lock()
			s.binds = append(s.binds, iface)
			s.mu.Unlock()

			if s.FailBind {
				send(c, wayland.NewRequest(1, 0).Uint(registry).Uint(1).String("bind refused"))
				continue
			}
			if s.OnBind != nil {
				for _, ev := range s.OnBind(iface, id) {
					wayland.WriteMessage(c, ev)
				}
			}
		}
	}
}

func send(w io.Writer, r *wayland.Request) {
	buf, err := r.Bytes()
	if err != nil {
		return
	}
	w.Write(buf)
}
