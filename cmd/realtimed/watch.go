package main

import (
	"context"
	"log/slog"

	"github.com/rickgao/escrow-realtime/internal/i18n"
	"github.com/rickgao/escrow-realtime/internal/store"
)

// watchStore logs notifications as they arrive and payment status changes
// until ctx is done.
func watchStore(ctx context.Context, st *store.Store, renderer *i18n.Renderer, locale string, logger *slog.Logger) {
	seen := make(map[int64]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-st.Changes():
			switch change.Kind {
			case store.ChangeReset:
				clear(seen)
			case store.ChangeNotifications:
				logNewNotifications(st, renderer, locale, seen, logger)
			case store.ChangePayment:
				if p, ok := st.PaymentStatus(); ok {
					logger.Info("payment status",
						"status", p.Status,
						"payment_id", p.PaymentID,
						"amount", p.Amount,
						"currency", p.Currency,
					)
				}
			}
		}
	}
}

func logNewNotifications(st *store.Store, renderer *i18n.Renderer, locale string, seen map[int64]struct{}, logger *slog.Logger) {
	unread := st.UnreadNotificationCount()
	for _, n := range st.Notifications() {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		logger.Info("notification",
			"id", n.ID,
			"type", n.NotificationType,
			"text", renderer.Render(n, locale),
			"read", n.IsRead,
			"unread_total", unread,
		)
	}
}
