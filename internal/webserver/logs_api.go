package webserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
)

// handleLogs returns recent logs
func handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	logs := logger.GetLogBuffer().GetRecent(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":      logs,
		"count":     len(logs),
		"timestamp": time.Now(),
	})
}

// handleLogsDownload downloads logs as a file
func handleLogsDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	buffer := logger.GetLogBuffer()
	stamp := time.Now().Format("20060102-150405")

	switch format {
	case "json":
		data, err := buffer.ToJSON()
		if err != nil {
			http.Error(w, "Failed to generate JSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=printer-fleet-logs-%s.json", stamp))
		w.Write(data)

	case "text":
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=printer-fleet-logs-%s.txt", stamp))
		w.Write([]byte(buffer.ToText()))

	default:
		http.Error(w, "Invalid format. Use 'json' or 'text'", http.StatusBadRequest)
	}
}

// handleLogsClear clears the log buffer
func handleLogsClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger.GetLogBuffer().Clear()
	logger.Info("Log buffer cleared")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Log buffer cleared",
	})
}
