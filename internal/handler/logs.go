package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"signalplan/internal/config"
)

// LogsHandler serves one of the run's log files (info, warning or error)
// as text/plain, chosen by the "level" query parameter.
func LogsHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level := r.URL.Query().Get("level")
		if level == "" {
			level = "info"
		}

		switch level {
		case "info", "warning", "error":
			serveLogFile(w, r, cfg.LogDirectory, level+".log")
		default:
			http.Error(w, "unknown log level: "+level, http.StatusBadRequest)
		}
	}
}

// serveLogFile sets headers and serves a log file if it exists.
func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	if logDir == "" {
		http.Error(w, "file logging is disabled", http.StatusNotFound)
		return
	}

	filePath := filepath.Join(logDir, filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "Log file not found: "+filename, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, filePath)
}
