package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rjboer/adrv9002/internal/logging"
)

// WebServer exposes tuning history, diagnostics and live updates over HTTP.
type WebServer struct {
	srv *http.Server
	hub *Hub
}

// Handler returns the API routes of the hub.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/latest", h.handleLatest)
	mux.HandleFunc("/api/live", h.handleLive)
	mux.HandleFunc("/api/config", h.handleGetConfig)
	mux.HandleFunc("/api/config/update", h.handleSetConfig)
	mux.HandleFunc("/api/diagnostics", h.handleDiagnostics)
	mux.HandleFunc("/api/health", h.handleHealth)
	return mux
}

// NewWebServer builds an HTTP server for the hub API.
func NewWebServer(addr string, hub *Hub) *WebServer {
	return &WebServer{
		hub: hub,
		srv: &http.Server{Addr: addr, Handler: hub.Handler(), ReadHeaderTimeout: 5 * time.Second},
	}
}

// Start begins listening and shuts down when the context is canceled.
func (w *WebServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.hub.logger.Warn("web telemetry shutdown", logging.Err(err))
		}
	}()

	w.hub.logger.Info("web telemetry listening", logging.F("addr", w.srv.Addr))
	if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		w.hub.logger.Error("web telemetry server error", logging.Err(err))
	}
}
