package route

import (
	"net/http"

	"signalplan/internal/config"
	"signalplan/internal/handler"
	"signalplan/internal/logger"
	hub "signalplan/internal/service/websocket"
)

// SetupRoutes registers the progress feed and log endpoints.
func SetupRoutes(progress *hub.HubService, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/progress", handler.ProgressWebsocketHandler(progress, logger))
	mux.HandleFunc("/logs", handler.LogsHandler(cfg))

	return mux
}
