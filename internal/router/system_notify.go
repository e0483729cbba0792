package router

import (
	"context"
	"log/slog"

	"github.com/jobichi/casita/internal/topics"
)

// handleSystemNotify observes the fan-out channel the router itself feeds.
// Events are appended to the audit log; nothing on this channel ever
// mutates device tables, which keeps the fan-out loop-safe even though the
// router subscribes to its own publications.
func (r *Router) handleSystemNotify(ctx context.Context, log *slog.Logger, route topics.Route, payload []byte) {
	topic := "system/notify/" + route.Event
	if route.Device != "" {
		topic = "system/notify/" + route.Device + "/" + route.Event
	}
	log.Debug("notify observed", "device", route.Device, "event", route.Event)
	if err := r.store.AppendSystemLog(ctx, topic, route.Event, string(payload)); err != nil {
		log.Warn("audit append failed", "event", route.Event, "err", err)
	}
}
