// Package router is the single authority between device traffic and the
// persistence store. It consumes every broker message the control plane
// subscribes to, mutates SQLite accordingly, and fans the result back out on
// the notify and response channels for interested services.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/jobichi/casita/internal/mqtt"
	"github.com/jobichi/casita/internal/store"
	"github.com/jobichi/casita/internal/topics"
)

// Router owns the message loop. All handlers run on the loop goroutine, so
// per-topic ordering is preserved end to end and the store never sees
// concurrent writers from this process.
type Router struct {
	store  *store.Store
	pub    mqtt.Publisher
	logger *slog.Logger
}

func New(st *store.Store, pub mqtt.Publisher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{store: st, pub: pub, logger: logger.With("component", "router")}
}

// Run drains msgs until the channel closes or ctx is cancelled. A handler
// panic is logged and the loop keeps going; one poisoned payload must not
// take the whole control plane down.
func (r *Router) Run(ctx context.Context, msgs <-chan mqtt.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.dispatch(ctx, msg)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, msg mqtt.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panic",
				"topic", msg.Topic,
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()

	route, err := topics.Parse(msg.Topic)
	if err != nil {
		if errors.Is(err, topics.ErrUnhandled) {
			r.logger.Debug("unhandled topic", "topic", msg.Topic)
		} else {
			r.logger.Warn("malformed topic", "topic", msg.Topic, "err", err)
		}
		return
	}

	payload := msg.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		r.logger.Warn("malformed payload", "topic", msg.Topic)
		return
	}

	log := r.logger.With("msg_id", uuid.NewString(), "topic", msg.Topic)

	if route.Kind == topics.KindSystem {
		switch route.Verb {
		case topics.VerbSet:
			r.handleSystemSet(ctx, log, route, payload)
		case topics.VerbGet:
			r.handleSystemGet(ctx, log, route, payload)
		case topics.VerbSelect:
			r.handleSystemSelect(ctx, log, route, payload)
		case topics.VerbNotify:
			r.handleSystemNotify(ctx, log, route, payload)
		}
		return
	}

	switch route.Channel {
	case topics.ChannelAnnounce:
		r.handleAnnounce(ctx, log, route, payload)
	case topics.ChannelUpdate:
		r.handleUpdate(ctx, log, route, payload)
	case topics.ChannelAlert:
		r.handleAlert(ctx, log, route, payload)
	case topics.ChannelResponse:
		r.handleResponse(ctx, log, route, payload)
	}
}

func (r *Router) publishJSON(ctx context.Context, log *slog.Logger, topic string, qos byte, v any) {
	if err := mqtt.PublishJSON(ctx, r.pub, topic, qos, v); err != nil {
		log.Warn("publish failed", "target", topic, "err", err)
	}
}
