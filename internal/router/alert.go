package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jobichi/casita/internal/store"
	"github.com/jobichi/casita/internal/topics"
)

type alertPayload struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Code     any    `json:"code"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// handleAlert upserts the latest alert for a component. Only one row per
// component survives; a new alert replaces whatever was there, regardless of
// severity. Name and location fall back to the registered metadata when the
// device omits them.
func (r *Router) handleAlert(ctx context.Context, log *slog.Logger, route topics.Route, payload []byte) {
	var p alertPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn("alert decode failed", "err", err)
		return
	}
	if p.Status == "" {
		p.Status = "ALERT"
	}
	if p.Message == "" {
		p.Message = "no message"
	}
	if p.Severity == "" {
		p.Severity = "medium"
	}

	if err := r.store.UpsertDevice(ctx, route.Device); err != nil {
		log.Error("alert device upsert failed", "device", route.Device, "err", err)
		return
	}

	name, location := p.Name, p.Location
	if name == "" || location == "" {
		metaName, metaLoc, found, err := r.store.ComponentMeta(ctx, route.Component, route.Device, route.ID)
		if err != nil {
			log.Warn("alert metadata lookup failed",
				"device", route.Device, "type", route.Component, "id", route.ID, "err", err)
		} else if found {
			if name == "" {
				name = metaName
			}
			if location == "" {
				location = metaLoc
			}
		}
	}

	var code *string
	if p.Code != nil {
		s := fmt.Sprint(p.Code)
		code = &s
	}

	row := store.AlertRow{
		DeviceName:    route.Device,
		ComponentType: string(route.Component),
		ComponentID:   route.ID,
		ComponentName: optString(name),
		Location:      optString(location),
		Status:        p.Status,
		Message:       p.Message,
		Severity:      p.Severity,
		Code:          code,
	}
	if err := r.store.UpsertAlert(ctx, row); err != nil {
		// Alerts are volatile; the next one from the device replaces
		// this, so a failed write is logged and dropped.
		log.Error("alert upsert failed",
			"device", route.Device, "type", route.Component, "id", route.ID, "err", err)
		return
	}

	log.Info("alert stored",
		"device", route.Device, "type", route.Component, "id", route.ID,
		"severity", p.Severity, "status", p.Status)

	notify := map[string]any{
		"device":    route.Device,
		"type":      string(route.Component),
		"id":        route.ID,
		"status":    p.Status,
		"message":   p.Message,
		"severity":  p.Severity,
		"timestamp": store.Now(),
	}
	if code != nil {
		notify["code"] = *code
	}
	if name != "" {
		notify["name"] = name
	}
	if location != "" {
		notify["location"] = location
	}
	r.publishJSON(ctx, log, topics.NotifyAlert(), 1, notify)
}
