package httpx

import (
	"net/http"

	"log/slog"

	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/internal/app"
	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/internal/ws"
	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub) http.Handler {
	mw := NewMiddleware(cfg)
	api := &RoomsAPI{Hub: hub}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	// Room status: the operator listing needs a token, per-room presence
	// is as public as the websocket query it mirrors
	mux.Handle("GET /api/rooms", mw.Auth(http.HandlerFunc(api.List)))
	mux.Handle("GET /api/rooms/{id}/online", http.HandlerFunc(api.Online))

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
