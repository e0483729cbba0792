package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jobichi/casita/internal/topics"
)

type systemGetPayload struct {
	Device string `json:"device"`
	Type   string `json:"type"`
	ID     any    `json:"id"`
}

// target is a validated (device, component) reference from a service
// request.
type target struct {
	device   string
	compType topics.ComponentType
	id       int
}

// validateTarget checks that a service request names a registered
// component. Unparseable fields are logged and dropped; a well-formed
// reference to a missing device or component gets an error reply on the
// requester's response topic so the service can react.
func (r *Router) validateTarget(ctx context.Context, log *slog.Logger, requester, device, rawType string, rawID any) (target, bool) {
	compType, err := topics.ParseComponentType(rawType)
	if err != nil {
		log.Warn("request with bad component type", "requester", requester, "type", rawType)
		return target{}, false
	}
	id, ok := asInt(rawID)
	if !ok || id < 0 {
		log.Warn("request with bad component id", "requester", requester, "id", rawID)
		return target{}, false
	}
	if device == "" {
		log.Warn("request without device", "requester", requester)
		return target{}, false
	}

	t := target{device: device, compType: compType, id: id}

	exists, err := r.store.DeviceExists(ctx, device)
	if err != nil {
		log.Error("device lookup failed", "device", device, "err", err)
		return target{}, false
	}
	if !exists {
		// Requesting services only discriminate on component_not_found,
		// so a missing device answers with the same code.
		r.publishTargetError(ctx, log, requester, t)
		return target{}, false
	}
	_, _, found, err := r.store.ComponentMeta(ctx, compType, device, id)
	if err != nil {
		log.Error("component lookup failed",
			"device", device, "type", compType, "id", id, "err", err)
		return target{}, false
	}
	if !found {
		r.publishTargetError(ctx, log, requester, t)
		return target{}, false
	}
	return t, true
}

func (r *Router) publishTargetError(ctx context.Context, log *slog.Logger, requester string, t target) {
	log.Warn("request for unknown target",
		"requester", requester, "device", t.device, "type", t.compType, "id", t.id)
	r.publishJSON(ctx, log, topics.Response(requester, t.compType, t.device, t.id), 1, map[string]any{
		"error":  "component_not_found",
		"device": t.device,
		"type":   string(t.compType),
		"id":     t.id,
	})
}

// handleSystemGet forwards a read request to the device after checking the
// target is registered. The requester rides along in the forwarded payload
// so the eventual device response can be correlated back.
func (r *Router) handleSystemGet(ctx context.Context, log *slog.Logger, route topics.Route, payload []byte) {
	var p systemGetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn("get decode failed", "err", err)
		return
	}

	t, ok := r.validateTarget(ctx, log, route.Service, p.Device, p.Type, p.ID)
	if !ok {
		return
	}

	log.Info("forwarding get",
		"requester", route.Service, "device", t.device, "type", t.compType, "id", t.id)
	r.publishJSON(ctx, log, topics.DeviceGet(t.device, t.compType, t.id), 1,
		map[string]any{"requester": route.Service})
}
