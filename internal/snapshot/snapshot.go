// Package snapshot maintains the intent service's in-memory mirror of
// the router's device tables. The mirror is filled from the select dump
// the service requests on every (re-)connect, then kept warm by the
// announce/update fan-out, so intent resolution never has to round-trip
// to the router.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jobichi/casita/internal/events"
	"github.com/jobichi/casita/internal/topics"
)

// Component is one mirrored sensor or actuator row.
type Component struct {
	Device   string
	Type     topics.ComponentType
	ID       int
	Name     string
	Location string
	Value    any
	Unit     string
	Enabled  *int
	State    *int
	LastSeen string
}

// Key returns the mirror key for a component.
func (c Component) Key() string {
	return fmt.Sprintf("%s/%d", c.Device, c.ID)
}

// Mirror holds the device tables the service has seen. It is safe for
// concurrent use: the broker loop writes while the pipeline reads.
type Mirror struct {
	service string
	logger  *slog.Logger
	bus     *events.Bus

	mu        sync.RWMutex
	devices   map[string]string // device -> last_seen
	sensors   map[string]Component
	actuators map[string]Component
	usable    bool
}

// New creates an empty mirror for the named service. The service name
// selects which response topics belong to this mirror; everything else
// on the response tree is ignored.
func New(service string, bus *events.Bus, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		service:   service,
		logger:    logger.With("component", "snapshot"),
		bus:       bus,
		devices:   make(map[string]string),
		sensors:   make(map[string]Component),
		actuators: make(map[string]Component),
	}
}

// Usable reports whether the mirror has ingested at least one dump row,
// the empty sentinel, or a live announce. Until then resolution would
// run against thin air and the pipeline refuses commands.
func (m *Mirror) Usable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usable
}

// Sensors returns a copy of the mirrored sensor rows.
func (m *Mirror) Sensors() []Component {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Component, 0, len(m.sensors))
	for _, c := range m.sensors {
		out = append(out, c)
	}
	return out
}

// Actuators returns a copy of the mirrored actuator rows.
func (m *Mirror) Actuators() []Component {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Component, 0, len(m.actuators))
	for _, c := range m.actuators {
		out = append(out, c)
	}
	return out
}

// Components returns sensors and actuators together.
func (m *Mirror) Components() []Component {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Component, 0, len(m.sensors)+len(m.actuators))
	for _, c := range m.sensors {
		out = append(out, c)
	}
	for _, c := range m.actuators {
		out = append(out, c)
	}
	return out
}

// DeviceCount returns how many devices the mirror knows.
func (m *Mirror) DeviceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// Ingest routes one inbound broker message into the mirror. Messages
// that are not dump rows or fan-out events for this service are
// ignored; the broker loop can feed it everything it receives.
func (m *Mirror) Ingest(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "system" {
		return
	}
	switch parts[1] {
	case "response":
		if parts[2] != m.service {
			return
		}
		m.ingestDumpRow(parts[3:], payload)
	case "notify":
		if len(parts) != 4 {
			return
		}
		switch parts[3] {
		case "announce":
			m.ingestAnnounce(payload)
		case "update":
			m.ingestUpdate(payload)
		}
	}
}

type dumpRow struct {
	DeviceName string  `json:"device_name"`
	ID         int     `json:"id"`
	Name       *string `json:"name"`
	Location   *string `json:"location"`
	Value      any     `json:"value"`
	Unit       *string `json:"unit"`
	Enabled    *int    `json:"enabled"`
	State      *int    `json:"state"`
	LastSeen   string  `json:"last_seen"`
}

func (m *Mirror) ingestDumpRow(rest []string, payload []byte) {
	if len(rest) == 0 {
		return
	}
	table := rest[0]

	// The empty sentinel still proves the router answered.
	if len(rest) == 2 && rest[1] == "empty" {
		m.markUsable()
		return
	}

	var row dumpRow
	if err := json.Unmarshal(payload, &row); err != nil {
		m.logger.Warn("dump row decode failed", "table", table, "err", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch table {
	case "devices":
		if row.DeviceName != "" {
			m.devices[row.DeviceName] = row.LastSeen
		}
	case "sensors", "actuators":
		c := Component{
			Device:   row.DeviceName,
			ID:       row.ID,
			Value:    row.Value,
			Enabled:  row.Enabled,
			State:    row.State,
			LastSeen: row.LastSeen,
		}
		if row.Name != nil {
			c.Name = *row.Name
		}
		if row.Location != nil {
			c.Location = *row.Location
		}
		if row.Unit != nil {
			c.Unit = *row.Unit
		}
		if table == "sensors" {
			c.Type = topics.Sensor
			m.sensors[c.Key()] = c
		} else {
			c.Type = topics.Actuator
			m.actuators[c.Key()] = c
		}
	default:
		return
	}
	m.setUsableLocked()
	m.bus.Emit(events.SourceSnapshot, events.KindSnapshotRow,
		map[string]any{"table": table, "device": row.DeviceName})
}

type announceEvent struct {
	Device   string `json:"device"`
	Type     string `json:"type"`
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Status   string `json:"status"`
}

func (m *Mirror) ingestAnnounce(payload []byte) {
	var ev announceEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		m.logger.Warn("announce event decode failed", "err", err)
		return
	}
	compType, err := topics.ParseComponentType(ev.Type)
	if err != nil || ev.Device == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%d", ev.Device, ev.ID)
	table := m.sensors
	if compType == topics.Actuator {
		table = m.actuators
	}

	if ev.Status == "unregistered" {
		// Forget the component locally; the router keeps its row.
		delete(table, key)
		m.logger.Debug("component unregistered", "device", ev.Device, "id", ev.ID)
		return
	}

	c := table[key]
	c.Device = ev.Device
	c.Type = compType
	c.ID = ev.ID
	c.Name = ev.Name
	c.Location = ev.Location
	table[key] = c
	m.devices[ev.Device] = c.LastSeen
	// A live registration is as good as a dump row: the mirror now holds
	// a resolvable component even if the dump never arrived.
	m.setUsableLocked()
	m.logger.Debug("component mirrored",
		"device", ev.Device, "type", compType, "id", ev.ID, "name", ev.Name)
}

type updateEvent struct {
	Device    string  `json:"device"`
	Type      string  `json:"type"`
	ID        int     `json:"id"`
	Value     any     `json:"value"`
	Units     *string `json:"units"`
	State     *int    `json:"state"`
	Timestamp string  `json:"timestamp"`
}

func (m *Mirror) ingestUpdate(payload []byte) {
	var ev updateEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		m.logger.Warn("update event decode failed", "err", err)
		return
	}
	compType, err := topics.ParseComponentType(ev.Type)
	if err != nil || ev.Device == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%d", ev.Device, ev.ID)
	table := m.sensors
	if compType == topics.Actuator {
		table = m.actuators
	}
	c := table[key]
	c.Device = ev.Device
	c.Type = compType
	c.ID = ev.ID
	c.LastSeen = ev.Timestamp
	switch compType {
	case topics.Sensor:
		if ev.Value != nil {
			c.Value = ev.Value
		}
		if ev.Units != nil {
			c.Unit = *ev.Units
		}
	case topics.Actuator:
		// A null state means the actuator is mid-motion; the last
		// settled state stays.
		if ev.State != nil {
			c.State = ev.State
		}
	}
	table[key] = c
	m.devices[ev.Device] = ev.Timestamp
}

func (m *Mirror) markUsable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setUsableLocked()
}

func (m *Mirror) setUsableLocked() {
	if m.usable {
		return
	}
	m.usable = true
	m.logger.Info("snapshot usable",
		"devices", len(m.devices), "sensors", len(m.sensors), "actuators", len(m.actuators))
	m.bus.Emit(events.SourceSnapshot, events.KindSnapshotUsable, nil)
}
