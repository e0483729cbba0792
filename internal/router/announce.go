package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jobichi/casita/internal/store"
	"github.com/jobichi/casita/internal/topics"
)

type announcePayload struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// handleAnnounce registers a component. Registration overwrites the stored
// name and location but never touches live value/state, so a device reboot
// does not wipe the last reading.
func (r *Router) handleAnnounce(ctx context.Context, log *slog.Logger, route topics.Route, payload []byte) {
	var p announcePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn("announce decode failed", "err", err)
		return
	}
	if p.Name == "" || p.Location == "" {
		log.Warn("announce missing name or location",
			"device", route.Device, "type", route.Component, "id", route.ID)
		return
	}

	if err := r.store.UpsertDevice(ctx, route.Device); err != nil {
		log.Error("announce device upsert failed", "device", route.Device, "err", err)
		return
	}
	if err := r.store.UpsertComponentMeta(ctx, route.Component, route.Device, route.ID, p.Name, p.Location); err != nil {
		log.Error("announce component upsert failed",
			"device", route.Device, "type", route.Component, "id", route.ID, "err", err)
		return
	}

	log.Info("component registered",
		"device", route.Device, "type", route.Component, "id", route.ID,
		"name", p.Name, "location", p.Location)

	r.publishJSON(ctx, log, topics.NotifyAnnounce(route.Device), 1, map[string]any{
		"device":    route.Device,
		"type":      string(route.Component),
		"id":        route.ID,
		"name":      p.Name,
		"location":  p.Location,
		"status":    "registered",
		"timestamp": store.Now(),
	})
}
