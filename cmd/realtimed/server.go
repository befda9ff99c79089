package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/escrow-realtime/internal/channel"
	"github.com/rickgao/escrow-realtime/internal/i18n"
	"github.com/rickgao/escrow-realtime/internal/journal"
	"github.com/rickgao/escrow-realtime/internal/store"
	"github.com/rickgao/escrow-realtime/internal/version"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type handlerDeps struct {
	store       *store.Store
	registry    *prometheus.Registry
	metricsPath string
	renderer    *i18n.Renderer
	locale      string
	status      func() map[string]bool // Channel name to connected
	journal     *journal.Writer        // Nil when the journal is disabled
	db          pinger                 // Nil when the journal is disabled
}

// renderedNotification is one notification as shown to the user.
type renderedNotification struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Type      string    `json:"notification_type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// newHandler creates the HTTP handler for health, metrics and debug routes.
func newHandler(deps handlerDeps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.Handle(deps.metricsPath, promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		channels := deps.status()
		health.Components["channels"] = channels
		if !channels[channel.NameNotifications] {
			health.Status = "degraded"
		}

		health.Components["store"] = map[string]any{
			"version":              deps.store.Version(),
			"unread_notifications": deps.store.UnreadNotificationCount(),
		}

		if deps.journal != nil {
			health.Components["journal"] = deps.journal.Stats()
		}

		// Check database
		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("write health response", "error", err)
		}
	})

	mux.HandleFunc("/debug/store", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.store.Snapshot())
	})

	mux.HandleFunc("/debug/notifications", func(w http.ResponseWriter, r *http.Request) {
		locale := r.URL.Query().Get("locale")
		if locale == "" {
			locale = deps.locale
		}

		list := deps.store.Notifications()
		out := make([]renderedNotification, 0, len(list))
		for _, n := range list {
			out = append(out, renderedNotification{
				ID:        n.ID,
				Text:      deps.renderer.Render(n, locale),
				Type:      n.NotificationType,
				IsRead:    n.IsRead,
				CreatedAt: n.CreatedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"locale":        deps.renderer.Match(locale).String(),
			"unread":        deps.store.UnreadNotificationCount(),
			"notifications": out,
		})
	})

	return mux
}
