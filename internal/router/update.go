package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jobichi/casita/internal/store"
	"github.com/jobichi/casita/internal/topics"
)

type updatePayload struct {
	Value any     `json:"value"`
	Unit  *string `json:"unit"`
	Units *string `json:"units"`
	State any     `json:"state"`
}

func (p updatePayload) unit() *string {
	if p.Unit != nil {
		return p.Unit
	}
	return p.Units
}

// handleUpdate ingests a periodic reading. Sensors persist value and unit;
// actuators persist state only when it is terminal, transient states just
// refresh last_seen so the stored 0/1 keeps meaning "where it settled".
func (r *Router) handleUpdate(ctx context.Context, log *slog.Logger, route topics.Route, payload []byte) {
	var p updatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn("update decode failed", "err", err)
		return
	}

	if err := r.store.UpsertDevice(ctx, route.Device); err != nil {
		log.Error("update device upsert failed", "device", route.Device, "err", err)
		return
	}
	if err := r.store.EnsureComponent(ctx, route.Component, route.Device, route.ID); err != nil {
		log.Error("update component ensure failed",
			"device", route.Device, "type", route.Component, "id", route.ID, "err", err)
		return
	}

	notify := map[string]any{
		"device":    route.Device,
		"type":      string(route.Component),
		"id":        route.ID,
		"timestamp": store.Now(),
	}

	switch route.Component {
	case topics.Sensor:
		if p.Value == nil {
			log.Warn("sensor update without value",
				"device", route.Device, "id", route.ID)
			return
		}
		if err := r.store.UpdateSensorValue(ctx, route.Device, route.ID, p.Value, p.unit()); err != nil {
			log.Error("sensor value update failed",
				"device", route.Device, "id", route.ID, "err", err)
			return
		}
		notify["value"] = p.Value
		if u := p.unit(); u != nil {
			notify["units"] = *u
		}

	case topics.Actuator:
		if p.State == nil {
			log.Warn("actuator update without state",
				"device", route.Device, "id", route.ID)
			return
		}
		state, text, terminal := normalizeState(p.State)
		if terminal {
			if err := r.store.UpdateActuatorState(ctx, route.Device, route.ID, state); err != nil {
				log.Error("actuator state update failed",
					"device", route.Device, "id", route.ID, "err", err)
				return
			}
			notify["state"] = state
		} else {
			if !isTransient(p.State) {
				log.Warn("unrecognized actuator state",
					"device", route.Device, "id", route.ID, "state", p.State)
			}
			if err := r.store.TouchComponent(ctx, route.Component, route.Device, route.ID); err != nil {
				log.Error("actuator touch failed",
					"device", route.Device, "id", route.ID, "err", err)
				return
			}
			notify["state"] = nil
		}
		if text != "" {
			notify["state_text"] = text
		}
	}

	r.publishJSON(ctx, log, topics.NotifyUpdate(route.Device), 1, notify)
}
