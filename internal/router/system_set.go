package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jobichi/casita/internal/store"
	"github.com/jobichi/casita/internal/topics"
)

type systemSetPayload struct {
	Device  string `json:"device"`
	Type    string `json:"type"`
	ID      any    `json:"id"`
	State   any    `json:"state"`
	Enable  any    `json:"enable"`
	Command string `json:"command"`
	Speed   any    `json:"speed"`
}

// handleSystemSet forwards a command to a registered component and updates
// the store to the commanded state so selects reflect intent immediately,
// not only after the device acknowledges. Three shapes are accepted:
// sensor enable/disable, simple actuator on/off, and motion commands
// (OPEN/CLOSE/STOP with optional speed).
func (r *Router) handleSystemSet(ctx context.Context, log *slog.Logger, route topics.Route, payload []byte) {
	var p systemSetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn("set decode failed", "err", err)
		return
	}

	t, ok := r.validateTarget(ctx, log, route.Service, p.Device, p.Type, p.ID)
	if !ok {
		return
	}

	forward := map[string]any{"requester": route.Service}
	var notifyValue any

	switch t.compType {
	case topics.Sensor:
		if p.Enable == nil {
			log.Warn("sensor set without enable",
				"requester", route.Service, "device", t.device, "id", t.id)
			return
		}
		enable := normalizeBool(p.Enable)
		forward["enable"] = enable
		notifyValue = enable
		// Persisted enabled flips on the device's acknowledgment, not
		// here; only last_seen moves now.
		if err := r.store.UpsertDevice(ctx, t.device); err != nil {
			log.Error("set device upsert failed", "device", t.device, "err", err)
			return
		}

	case topics.Actuator:
		switch {
		case p.Command != "":
			cmd := strings.ToUpper(strings.TrimSpace(p.Command))
			if cmd != "OPEN" && cmd != "CLOSE" && cmd != "STOP" {
				log.Warn("set with unknown command",
					"requester", route.Service, "device", t.device, "id", t.id, "command", p.Command)
				return
			}
			forward["command"] = cmd
			motion := map[string]any{"command": cmd}
			if p.Speed != nil {
				speed, ok := asInt(p.Speed)
				if !ok {
					log.Warn("set with bad speed",
						"requester", route.Service, "device", t.device, "id", t.id, "speed", p.Speed)
					return
				}
				speed = min(max(speed, 0), 100)
				forward["speed"] = speed
				motion["speed"] = speed
			}
			notifyValue = motion
			if cmd == "STOP" {
				// A stop leaves the stored state where it settled.
				if err := r.store.TouchComponent(ctx, topics.Actuator, t.device, t.id); err != nil {
					log.Error("set touch failed", "device", t.device, "id", t.id, "err", err)
					return
				}
			} else {
				if err := r.store.UpdateActuatorState(ctx, t.device, t.id, 1); err != nil {
					log.Error("set state update failed", "device", t.device, "id", t.id, "err", err)
					return
				}
			}

		case p.State != nil:
			state := normalizeBool(p.State)
			forward["state"] = state
			notifyValue = state
			v := 0
			if state {
				v = 1
			}
			if err := r.store.UpdateActuatorState(ctx, t.device, t.id, v); err != nil {
				log.Error("set state update failed", "device", t.device, "id", t.id, "err", err)
				return
			}

		default:
			log.Warn("actuator set without command or state",
				"requester", route.Service, "device", t.device, "id", t.id)
			return
		}
		if err := r.store.UpsertDevice(ctx, t.device); err != nil {
			log.Error("set device upsert failed", "device", t.device, "err", err)
			return
		}
	}

	log.Info("forwarding set",
		"requester", route.Service, "device", t.device, "type", t.compType, "id", t.id)
	r.publishJSON(ctx, log, topics.DeviceSet(t.device, t.compType, t.id), 1, forward)

	name, location, _, err := r.store.ComponentMeta(ctx, t.compType, t.device, t.id)
	if err != nil {
		log.Warn("set metadata lookup failed", "device", t.device, "id", t.id, "err", err)
	}
	r.publishJSON(ctx, log, topics.NotifySet(), 1, map[string]any{
		"device":    t.device,
		"type":      string(t.compType),
		"id":        t.id,
		"name":      name,
		"location":  location,
		"value":     notifyValue,
		"timestamp": store.Now(),
		"source":    route.Service,
	})
}
