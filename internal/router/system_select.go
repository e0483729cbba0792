package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jobichi/casita/internal/store"
	"github.com/jobichi/casita/internal/topics"
)

const defaultAlertLimit = 10

type systemSelectPayload struct {
	Request string `json:"request"`
	Device  string `json:"device"`
	ID      any    `json:"id"`
	Limit   any    `json:"limit"`
}

// emptyResult is the sentinel published when a select matches nothing, so
// a waiting service can distinguish "no rows" from "router down".
var emptyResult = map[string]string{"status": "no_results"}

// handleSystemSelect answers a bulk read from the store. Rows fan out one
// message each on per-row topics; a consumer can therefore subscribe to the
// slice it cares about instead of reparsing a monolithic dump.
func (r *Router) handleSystemSelect(ctx context.Context, log *slog.Logger, route topics.Route, payload []byte) {
	var p systemSelectPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn("select decode failed", "err", err)
		return
	}

	var id *int
	if p.ID != nil {
		n, ok := asInt(p.ID)
		if !ok {
			log.Warn("select with bad id", "requester", route.Service, "id", p.ID)
			return
		}
		id = &n
	}

	request := strings.ToLower(strings.TrimSpace(p.Request))
	log = log.With("requester", route.Service, "request", request)

	switch request {
	case "devices":
		r.selectDevices(ctx, log, route.Service, "")
	case "sensors":
		r.selectSensors(ctx, log, route.Service, p.Device, id, "")
	case "actuators":
		r.selectActuators(ctx, log, route.Service, p.Device, id, "")
	case "alerts":
		limit := defaultAlertLimit
		if p.Limit != nil {
			if n, ok := asInt(p.Limit); ok && n >= 0 {
				limit = n
			}
		}
		r.selectAlerts(ctx, log, route.Service, limit)
	case "all":
		// A full dump is a snapshot; every row carries the same stamp
		// so consumers can tell dump generations apart.
		ts := store.Now()
		r.selectDevices(ctx, log, route.Service, ts)
		r.selectSensors(ctx, log, route.Service, "", nil, ts)
		r.selectActuators(ctx, log, route.Service, "", nil, ts)
	default:
		log.Warn("select with unknown request")
	}
}

func (r *Router) selectDevices(ctx context.Context, log *slog.Logger, requester, snapshotTS string) {
	rows, err := r.store.SelectDevices(ctx)
	if err != nil {
		log.Error("device select failed", "err", err)
		return
	}
	if len(rows) == 0 {
		r.publishJSON(ctx, log, topics.ResponseEmpty(requester, "devices"), 1, emptyResult)
		return
	}
	for _, row := range rows {
		row.SnapshotTS = snapshotTS
		r.publishJSON(ctx, log, topics.ResponseDeviceRow(requester, row.DeviceName), 1, row)
	}
	log.Debug("device select answered", "rows", len(rows))
}

func (r *Router) selectSensors(ctx context.Context, log *slog.Logger, requester, device string, id *int, snapshotTS string) {
	rows, err := r.store.SelectSensors(ctx, device, id)
	if err != nil {
		log.Error("sensor select failed", "err", err)
		return
	}
	if len(rows) == 0 {
		r.publishJSON(ctx, log, topics.ResponseEmpty(requester, "sensors"), 1, emptyResult)
		return
	}
	for _, row := range rows {
		row.SnapshotTS = snapshotTS
		r.publishJSON(ctx, log,
			topics.ResponseComponentRow(requester, "sensors", row.DeviceName, row.ID), 1, row)
	}
	log.Debug("sensor select answered", "rows", len(rows))
}

func (r *Router) selectActuators(ctx context.Context, log *slog.Logger, requester, device string, id *int, snapshotTS string) {
	rows, err := r.store.SelectActuators(ctx, device, id)
	if err != nil {
		log.Error("actuator select failed", "err", err)
		return
	}
	if len(rows) == 0 {
		r.publishJSON(ctx, log, topics.ResponseEmpty(requester, "actuators"), 1, emptyResult)
		return
	}
	for _, row := range rows {
		row.SnapshotTS = snapshotTS
		r.publishJSON(ctx, log,
			topics.ResponseComponentRow(requester, "actuators", row.DeviceName, row.ID), 1, row)
	}
	log.Debug("actuator select answered", "rows", len(rows))
}

func (r *Router) selectAlerts(ctx context.Context, log *slog.Logger, requester string, limit int) {
	rows, err := r.store.SelectAlerts(ctx, limit)
	if err != nil {
		log.Error("alert select failed", "err", err)
		return
	}
	if len(rows) == 0 {
		r.publishJSON(ctx, log, topics.ResponseEmpty(requester, "alerts"), 1, emptyResult)
		return
	}
	for _, row := range rows {
		r.publishJSON(ctx, log,
			topics.ResponseAlertRow(requester, row.DeviceName, topics.ComponentType(row.ComponentType), row.ComponentID), 1, row)
	}
	log.Debug("alert select answered", "rows", len(rows))
}
