package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jobichi/casita/internal/store"
	"github.com/jobichi/casita/internal/topics"
)

// telegramService always receives a copy of cleaned device responses so
// the chat frontend can mirror live state without issuing its own gets.
const telegramService = "telegram-service"

type devResponsePayload struct {
	Requester string  `json:"requester"`
	Value     any     `json:"value"`
	Unit      *string `json:"unit"`
	Units     *string `json:"units"`
	State     any     `json:"state"`
	Enabled   any     `json:"enabled"`
	Enable    any     `json:"enable"`
}

func (p devResponsePayload) unit() *string {
	if p.Unit != nil {
		return p.Unit
	}
	return p.Units
}

func (p devResponsePayload) enabled() any {
	if p.Enabled != nil {
		return p.Enabled
	}
	return p.Enable
}

// handleResponse ingests a device's reply to a forwarded get/set, persists
// whatever it reports, and republishes a cleaned payload with the requester
// stripped: once to the correlated requester, and once to the telegram tap
// unless telegram was the requester.
func (r *Router) handleResponse(ctx context.Context, log *slog.Logger, route topics.Route, payload []byte) {
	var p devResponsePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn("response decode failed", "err", err)
		return
	}

	if err := r.store.UpsertDevice(ctx, route.Device); err != nil {
		log.Error("response device upsert failed", "device", route.Device, "err", err)
		return
	}
	if err := r.store.EnsureComponent(ctx, route.Component, route.Device, route.ID); err != nil {
		log.Error("response component ensure failed",
			"device", route.Device, "type", route.Component, "id", route.ID, "err", err)
		return
	}

	cleaned := map[string]any{
		"device":    route.Device,
		"type":      string(route.Component),
		"id":        route.ID,
		"timestamp": store.Now(),
	}

	switch route.Component {
	case topics.Sensor:
		if p.Value != nil {
			if err := r.store.UpdateSensorValue(ctx, route.Device, route.ID, p.Value, p.unit()); err != nil {
				log.Error("response value update failed",
					"device", route.Device, "id", route.ID, "err", err)
				return
			}
			cleaned["value"] = p.Value
			if u := p.unit(); u != nil {
				cleaned["units"] = *u
			}
		}
		if en := p.enabled(); en != nil {
			b := normalizeBool(en)
			if err := r.store.UpdateSensorEnabled(ctx, route.Device, route.ID, b); err != nil {
				log.Error("response enabled update failed",
					"device", route.Device, "id", route.ID, "err", err)
				return
			}
			v := 0
			if b {
				v = 1
			}
			cleaned["enabled"] = v
		}

	case topics.Actuator:
		if p.State == nil {
			log.Warn("actuator response without state",
				"device", route.Device, "id", route.ID)
			return
		}
		state, text, terminal := normalizeState(p.State)
		if terminal {
			if err := r.store.UpdateActuatorState(ctx, route.Device, route.ID, state); err != nil {
				log.Error("response state update failed",
					"device", route.Device, "id", route.ID, "err", err)
				return
			}
			cleaned["state"] = state
		} else {
			if !isTransient(p.State) {
				log.Warn("unrecognized actuator state",
					"device", route.Device, "id", route.ID, "state", p.State)
			}
			if err := r.store.TouchComponent(ctx, route.Component, route.Device, route.ID); err != nil {
				log.Error("response touch failed",
					"device", route.Device, "id", route.ID, "err", err)
				return
			}
			cleaned["state"] = nil
		}
		if text != "" {
			cleaned["state_text"] = text
		}
	}

	if p.Requester != "" {
		r.publishJSON(ctx, log,
			topics.Response(p.Requester, route.Component, route.Device, route.ID), 1, cleaned)
	}
	if p.Requester != telegramService {
		r.publishJSON(ctx, log,
			topics.Response(telegramService, route.Component, route.Device, route.ID), 1, cleaned)
	}
}
