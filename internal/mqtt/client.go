// Package mqtt manages the broker connection for both the router and
// the services. It wraps Eclipse Paho v2's [autopaho] connection
// manager: automatic reconnection with backoff, (re-)subscription on
// every connection-up, and serial delivery of inbound publishes into a
// single channel so consumers see broker order.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/jobichi/casita/internal/config"
	"github.com/jobichi/casita/internal/topics"
)

// Publisher is the outbound seam handlers publish through. The
// concrete implementation is [Conn]; tests substitute a recorder.
type Publisher interface {
	// Publish sends payload to topic at the given QoS.
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
}

// PublishJSON marshals v and publishes it through p.
func PublishJSON(ctx context.Context, p Publisher, topic string, qos byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	return p.Publish(ctx, topic, qos, payload)
}

// Message is one inbound broker delivery.
type Message struct {
	Topic   string
	Payload []byte
}

// Options configures a broker connection.
type Options struct {
	// ClientID identifies this session to the broker.
	ClientID string
	// Subscriptions are (re-)established on every connection-up.
	Subscriptions []topics.Subscription
	// OnConnect, if set, runs after subscriptions are established on
	// every (re-)connect. Services use it to re-request their
	// snapshot dump.
	OnConnect func(ctx context.Context)
	// OnConnectionDown, if set, runs when an established connection is
	// lost or the broker disconnects us. autopaho keeps reconnecting
	// either way; this is for observability only.
	OnConnectionDown func(err error)
	// Buffer sizes the inbound delivery channel (default 256).
	Buffer int
}

// Conn is an established broker connection. Inbound publishes arrive
// on [Conn.Messages] in broker order; the delivery goroutine blocks
// when the consumer falls behind, so ordering is preserved end to end.
type Conn struct {
	cfg    config.MQTTConfig
	opts   Options
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
	msgs   chan Message
	ctx    context.Context
}

// Dial connects to the broker described by cfg. It returns once the
// connection manager is running; the initial connection is awaited for
// up to 30 seconds and then left to retry in the background, matching
// the broker's own availability model.
func Dial(ctx context.Context, cfg config.MQTTConfig, opts Options, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}

	brokerURL, err := url.Parse(cfg.BrokerURL())
	if err != nil {
		return nil, fmt.Errorf("parse broker URL: %w", err)
	}

	c := &Conn{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		msgs:   make(chan Message, opts.Buffer),
		ctx:    ctx,
	}

	keepalive := uint16(60)
	if cfg.Keepalive > 0 {
		keepalive = uint16(cfg.Keepalive)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       keepalive,
		ConnectUsername: cfg.Username,
		ConnectPassword: []byte(cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.Info("mqtt connected to broker", "broker", cfg.BrokerURL())
			c.subscribe(ctx, cm)
			if opts.OnConnect != nil {
				opts.OnConnect(ctx)
			}
		},
		OnConnectError: func(err error) {
			logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: opts.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.deliver,
			},
			OnClientError: func(err error) {
				logger.Warn("mqtt connection lost", "error", err)
				if opts.OnConnectionDown != nil {
					opts.OnConnectionDown(err)
				}
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				logger.Warn("mqtt server disconnect", "reason", d.ReasonCode)
				if opts.OnConnectionDown != nil {
					opts.OnConnectionDown(fmt.Errorf("server disconnect, reason code %d", d.ReasonCode))
				}
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// Log but don't fail — autopaho keeps retrying in the background.
		logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	return c, nil
}

// subscribe (re-)establishes the configured topic filters.
func (c *Conn) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	if len(c.opts.Subscriptions) == 0 {
		return
	}

	subs := make([]paho.SubscribeOptions, 0, len(c.opts.Subscriptions))
	for _, s := range c.opts.Subscriptions {
		subs = append(subs, paho.SubscribeOptions{Topic: s.Filter, QoS: s.QoS})
	}

	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		c.logger.Error("mqtt subscribe failed", "error", err)
		return
	}
	for _, s := range c.opts.Subscriptions {
		c.logger.Info("mqtt subscribed", "filter", s.Filter, "qos", s.QoS)
	}
}

// deliver pushes an inbound publish onto the message channel. It
// blocks when the consumer is behind so broker order is never
// reshuffled; on shutdown the message is dropped instead.
func (c *Conn) deliver(pr paho.PublishReceived) (bool, error) {
	msg := Message{Topic: pr.Packet.Topic, Payload: pr.Packet.Payload}
	select {
	case c.msgs <- msg:
	case <-c.ctx.Done():
	}
	return true, nil
}

// Messages returns the inbound delivery channel. A single consumer
// draining this channel sees messages in broker order.
func (c *Conn) Messages() <-chan Message {
	return c.msgs
}

// Publish sends payload to topic at the given QoS.
func (c *Conn) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if _, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// AwaitConnection blocks until the broker connection is established or
// ctx expires.
func (c *Conn) AwaitConnection(ctx context.Context) error {
	return c.cm.AwaitConnection(ctx)
}

// Disconnect closes the connection gracefully.
func (c *Conn) Disconnect(ctx context.Context) error {
	return c.cm.Disconnect(ctx)
}
