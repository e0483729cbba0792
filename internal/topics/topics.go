// Package topics implements the canonical broker topic grammar shared
// by the router and the services. Every inbound topic is parsed into a
// [Route]; every outbound topic is produced by a builder here so the
// format strings live in exactly one place.
//
// Device-facing channels:
//
//	announce/<device>/<type>/<id>
//	update/<device>/<type>/<id>
//	alert/<device>/<type>/<id>
//	response/<device>/<type>/<id>
//
// Service-facing channels:
//
//	system/set/<service>
//	system/get/<service>
//	system/select/<service>
//	system/notify/<event>
//	system/notify/<device>/<event>
package topics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ComponentType distinguishes the two component tables.
type ComponentType string

const (
	Sensor   ComponentType = "sensor"
	Actuator ComponentType = "actuator"
)

// Valid reports whether t is one of the two known component types.
func (t ComponentType) Valid() bool {
	return t == Sensor || t == Actuator
}

// Table returns the persistence table name for this component type.
func (t ComponentType) Table() string {
	return string(t) + "s"
}

// ParseComponentType normalizes and validates a component type string.
func ParseComponentType(s string) (ComponentType, error) {
	t := ComponentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown component type %q", s)
	}
	return t, nil
}

// Channel identifies a device-originated topic family.
type Channel string

const (
	ChannelAnnounce Channel = "announce"
	ChannelUpdate   Channel = "update"
	ChannelAlert    Channel = "alert"
	ChannelResponse Channel = "response"
)

// Verb identifies a service-originated system topic family.
type Verb string

const (
	VerbSet    Verb = "set"
	VerbGet    Verb = "get"
	VerbSelect Verb = "select"
	VerbNotify Verb = "notify"
)

// Kind tags which half of the Route union is populated.
type Kind int

const (
	// KindDevice routes carry Channel, Device, Component, and ID.
	KindDevice Kind = iota
	// KindSystem routes carry Verb plus Service (set/get/select) or
	// Device/Event (notify).
	KindSystem
)

// Route is the parsed form of an inbound topic.
type Route struct {
	Kind Kind

	// Device channel fields.
	Channel   Channel
	Device    string
	Component ComponentType
	ID        int

	// System fields.
	Verb    Verb
	Service string
	Event   string
}

// ErrUnhandled marks topics that are well-formed broker traffic but
// have no router handler (raw get/set echoes, unknown prefixes). The
// dispatcher drops these at debug level rather than warning.
var ErrUnhandled = errors.New("no handler for topic")

// Parse canonicalizes an inbound topic into a Route. Malformed topics
// (wrong arity, non-integer or negative id, unknown component type)
// return a descriptive error; the caller logs and drops the message.
func Parse(topic string) (Route, error) {
	parts := strings.Split(topic, "/")

	switch parts[0] {
	case "announce", "update", "alert", "response":
		if len(parts) < 4 {
			return Route{}, fmt.Errorf("topic %q: want <channel>/<device>/<type>/<id>", topic)
		}
		device := parts[1]
		if device == "" {
			return Route{}, fmt.Errorf("topic %q: empty device segment", topic)
		}
		compType, err := ParseComponentType(parts[2])
		if err != nil {
			return Route{}, fmt.Errorf("topic %q: %w", topic, err)
		}
		id, err := strconv.Atoi(parts[3])
		if err != nil || id < 0 {
			return Route{}, fmt.Errorf("topic %q: invalid component id %q", topic, parts[3])
		}
		return Route{
			Kind:      KindDevice,
			Channel:   Channel(parts[0]),
			Device:    device,
			Component: compType,
			ID:        id,
		}, nil

	case "system":
		if len(parts) < 2 {
			return Route{}, fmt.Errorf("topic %q: bare system segment", topic)
		}
		switch Verb(parts[1]) {
		case VerbSet, VerbGet, VerbSelect:
			if len(parts) < 3 || parts[2] == "" {
				return Route{}, fmt.Errorf("topic %q: missing service segment", topic)
			}
			return Route{Kind: KindSystem, Verb: Verb(parts[1]), Service: parts[2]}, nil
		case VerbNotify:
			switch {
			case len(parts) == 3: // system/notify/<event>
				return Route{Kind: KindSystem, Verb: VerbNotify, Event: parts[2]}, nil
			case len(parts) >= 4: // system/notify/<device>/<event>
				return Route{Kind: KindSystem, Verb: VerbNotify, Device: parts[2], Event: parts[3]}, nil
			default:
				return Route{}, fmt.Errorf("topic %q: missing notify event segment", topic)
			}
		}
		return Route{}, fmt.Errorf("topic %q: %w", topic, ErrUnhandled)

	case "get", "set":
		// Device-facing commands published by the router itself; the
		// wildcard subscription echoes them back with no handler.
		return Route{}, fmt.Errorf("topic %q: %w", topic, ErrUnhandled)
	}

	return Route{}, fmt.Errorf("topic %q: %w", topic, ErrUnhandled)
}

// --- Outbound topic builders ---

// NotifyAnnounce is the fan-out topic for registration events.
func NotifyAnnounce(device string) string {
	return "system/notify/" + device + "/announce"
}

// NotifyUpdate is the fan-out topic for telemetry/state change events.
func NotifyUpdate(device string) string {
	return "system/notify/" + device + "/update"
}

// NotifyAlert is the global fan-out topic for alert events.
func NotifyAlert() string { return "system/notify/alert" }

// NotifySet is the global fan-out topic for command events.
func NotifySet() string { return "system/notify/set" }

// Response is the correlated reply topic for GET/SET acknowledgments.
func Response(requester string, compType ComponentType, device string, id int) string {
	return fmt.Sprintf("system/response/%s/%s/%s/%d", requester, compType, device, id)
}

// ResponseDeviceRow is the per-row reply topic for device selects.
func ResponseDeviceRow(requester, deviceName string) string {
	return "system/response/" + requester + "/devices/" + deviceName
}

// ResponseComponentRow is the per-row reply topic for sensor/actuator selects.
func ResponseComponentRow(requester, table, device string, id int) string {
	return fmt.Sprintf("system/response/%s/%s/%s/%d", requester, table, device, id)
}

// ResponseAlertRow is the per-row reply topic for alert selects.
func ResponseAlertRow(requester, device string, compType ComponentType, id int) string {
	return fmt.Sprintf("system/response/%s/alerts/%s/%s/%d", requester, device, compType, id)
}

// ResponseEmpty is the sentinel topic published when a select matches
// no rows.
func ResponseEmpty(requester, table string) string {
	return "system/response/" + requester + "/" + table + "/empty"
}

// DeviceGet is the device-facing topic a forwarded GET is published on.
func DeviceGet(device string, compType ComponentType, id int) string {
	return fmt.Sprintf("get/%s/%s/%d", device, compType, id)
}

// DeviceSet is the device-facing topic a forwarded SET is published on.
func DeviceSet(device string, compType ComponentType, id int) string {
	return fmt.Sprintf("set/%s/%s/%d", device, compType, id)
}

// Subscription pairs a topic filter with its QoS.
type Subscription struct {
	Filter string
	QoS    byte
}

// RouterSubscriptions is the full set of filters the router consumes.
// Telemetry channels tolerate QoS 0; alerts, responses, and the whole
// system tree ride QoS 1.
func RouterSubscriptions() []Subscription {
	return []Subscription{
		{Filter: "announce/#", QoS: 0},
		{Filter: "update/#", QoS: 0},
		{Filter: "alert/#", QoS: 1},
		{Filter: "response/#", QoS: 1},
		{Filter: "system/set/#", QoS: 1},
		{Filter: "system/get/#", QoS: 1},
		{Filter: "system/select/#", QoS: 1},
		{Filter: "system/notify/#", QoS: 1},
	}
}

// ServiceSubscriptions is the filter set a snapshot-consuming service
// (intent, telegram) needs: its own correlated responses plus the
// announce/update notify streams.
func ServiceSubscriptions(serviceName string) []Subscription {
	return []Subscription{
		{Filter: "system/response/" + serviceName + "/#", QoS: 1},
		{Filter: "system/notify/+/announce", QoS: 1},
		{Filter: "system/notify/+/update", QoS: 1},
	}
}
