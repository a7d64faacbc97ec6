package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"github.com/nantokaworks/printer-fleet/internal/status"
	"go.uber.org/zap"
)

// Fleet is the backend state the server exposes.
type Fleet interface {
	Last() protocol.FleetSnapshot
	RefreshedAt() time.Time
	Refresh(ctx context.Context) (protocol.FleetSnapshot, error)
	HandleMessage(ctx context.Context, data []byte)
	Tracker() *status.Tracker
}

// Server serves the dashboard channel and the HTTP API.
type Server struct {
	fleet     Fleet
	hub       *Hub
	staticDir string
	log       *zap.Logger

	httpServer *http.Server
	cancel     context.CancelFunc
}

// NewServer wires a hub to fleet. staticDir, when it exists, is served
// at the root.
func NewServer(fleet Fleet, staticDir string) *Server {
	return &Server{
		fleet:     fleet,
		hub:       NewHub(fleet.Last, fleet.HandleMessage),
		staticDir: staticDir,
		log:       logger.Named("webserver"),
	}
}

// Hub returns the websocket hub, which also implements
// broadcast.SnapshotBroadcaster.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(protocol.ChannelPath, s.hub.ServeWS)

	mux.HandleFunc("/api/printers", s.handlePrinters)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/status", s.handleStatus)

	mux.HandleFunc("/api/logs", handleLogs)
	mux.HandleFunc("/api/logs/download", handleLogsDownload)
	mux.HandleFunc("/api/logs/clear", handleLogsClear)

	if s.staticDir != "" {
		if info, err := os.Stat(s.staticDir); err == nil && info.IsDir() {
			mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
		} else {
			s.log.Warn("Static directory not found, serving API only", zap.String("dir", s.staticDir))
		}
	}
	return mux
}

// Start runs the hub and begins serving on addr. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	hubCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.hub.Run(hubCtx)

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("Starting web server", zap.String("address", listener.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Web server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests, disconnects dashboards and waits for
// in-flight requests up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("Shutting down web server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
