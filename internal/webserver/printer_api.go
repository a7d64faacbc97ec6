package webserver

import (
	"net/http"
	"time"

	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/status"
	"github.com/nantokaworks/printer-fleet/internal/version"
	"go.uber.org/zap"
)

type StatusResponse struct {
	Version     string                 `json:"version"`
	Clients     int                    `json:"clients"`
	Summary     status.Summary         `json:"summary"`
	Printers    []status.PrinterStatus `json:"printers"`
	RefreshedAt *time.Time             `json:"refreshed_at,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// handlePrinters returns the last polled snapshot in channel format.
func (s *Server) handlePrinters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeSnapshot(w, s.fleet.Last())
}

// handleRefresh polls every printer now and returns the fresh snapshot.
// Connected dashboards receive it through the hub as well.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snapshot, err := s.fleet.Refresh(r.Context())
	if err != nil {
		s.log.Error("Manual refresh failed", zap.Error(err))
		http.Error(w, "Failed to refresh printers", http.StatusInternalServerError)
		return
	}
	s.writeSnapshot(w, snapshot)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, snapshot protocol.FleetSnapshot) {
	data, err := protocol.EncodeSnapshot(snapshot)
	if err != nil {
		http.Error(w, "Failed to encode snapshot", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleStatus reports reachability per printer and the number of
// connected dashboards.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	tracker := s.fleet.Tracker()
	response := StatusResponse{
		Version:   version.Version,
		Clients:   s.hub.Count(),
		Summary:   tracker.Summary(),
		Printers:  tracker.All(),
		Timestamp: time.Now(),
	}
	if at := s.fleet.RefreshedAt(); !at.IsZero() {
		response.RefreshedAt = &at
	}
	if response.Printers == nil {
		response.Printers = []status.PrinterStatus{}
	}
	writeJSON(w, http.StatusOK, response)
}
