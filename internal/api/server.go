package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bryanchriswhite/gamescope-portal/internal/config"
	"github.com/bryanchriswhite/gamescope-portal/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-portal/internal/logger"
	"github.com/bryanchriswhite/gamescope-portal/internal/session"
	"github.com/bryanchriswhite/gamescope-portal/internal/stream"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Version is reported by the health endpoint
var Version = "0.1.0"

// Server represents the HTTP status API server
type Server struct {
	router    *mux.Router
	sessions  *session.Registry
	resolver  stream.Resolver
	configMgr *config.Manager
	probe     gamescope.Report
	upgrader  websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(sessions *session.Registry, resolver stream.Resolver, configMgr *config.Manager, probe gamescope.Report) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		sessions:  sessions,
		resolver:  resolver,
		configMgr: configMgr,
		probe:     probe,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Listens on loopback by default
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Sessions
	api.HandleFunc("/sessions", s.handleGetSessions).Methods("GET")
	api.HandleFunc("/sessions/events", s.handleSessionEvents)

	// Stream discovery
	api.HandleFunc("/stream/node", s.handleResolveNode).Methods("GET")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config/log_level", s.handleSetLogLevel).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	log := logger.WithComponent("api")

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("API server shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Starting status API")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// HTTP Handlers

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	events := s.sessions.Subscribe()
	defer s.sessions.Unsubscribe(events)

	// Detect the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the open sessions first
	for _, info := range s.sessions.List() {
		ev := session.Event{Type: session.EventCreated, Handle: info.Handle, Time: info.Created}
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleResolveNode(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	nodeID, err := s.resolver.Resolve(r.Context())
	elapsed := time.Since(started)

	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"strategy":   s.resolver.Name(),
			"error":      err.Error(),
			"elapsed_ms": elapsed.Milliseconds(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategy":   s.resolver.Name(),
		"node_id":    nodeID,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level string `json:"level"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	level, ok := logger.LookupLevel(req.Level)
	if !ok {
		http.Error(w, "invalid log level (use debug, info, warn or error)", http.StatusBadRequest)
		return
	}

	if err := s.configMgr.SetLogLevel(req.Level); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	zerolog.SetGlobalLevel(level)

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "level": level.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"version":  Version,
		"sessions": s.sessions.Len(),
		"probe":    s.probe,
	})
}
