package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jobichi/casita/internal/topics"
)

// UpsertDevice inserts a device row or refreshes its last_seen. Every
// handler calls this for the device it touches, so a device exists
// from the first message that mentions it.
func (s *Store) UpsertDevice(ctx context.Context, device string) error {
	return s.exec(ctx,
		`INSERT INTO devices (device_name, last_seen) VALUES (?, ?)
		 ON CONFLICT (device_name) DO UPDATE SET last_seen = excluded.last_seen`,
		device, Now(),
	)
}

// DeviceExists reports whether a device row is present.
func (s *Store) DeviceExists(ctx context.Context, device string) (bool, error) {
	found := false
	err := s.query(ctx,
		`SELECT 1 FROM devices WHERE device_name = ?`,
		func(rows *sql.Rows) error {
			found = rows.Next()
			return nil
		},
		device,
	)
	return found, err
}

// UpsertComponentMeta registers or renames a component. The name and
// location columns are overwritten; value/state columns are untouched
// so a re-announce never clobbers live readings.
func (s *Store) UpsertComponentMeta(ctx context.Context, compType topics.ComponentType, device string, id int, name, location string) error {
	// Table name comes from the validated enum, never from input.
	q := fmt.Sprintf(
		`INSERT INTO %s (id, device_name, name, location, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (device_name, id) DO UPDATE SET
		     name = excluded.name,
		     location = excluded.location,
		     last_seen = excluded.last_seen`,
		compType.Table(),
	)
	return s.exec(ctx, q, id, device, name, location, Now())
}

// EnsureComponent inserts a bare component row if none exists, so a
// message that references a never-announced component still lands in
// the right table.
func (s *Store) EnsureComponent(ctx context.Context, compType topics.ComponentType, device string, id int) error {
	q := fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (id, device_name, last_seen) VALUES (?, ?, ?)`,
		compType.Table(),
	)
	return s.exec(ctx, q, id, device, Now())
}

// ComponentMeta returns the stored name and location for a component,
// or found=false when the row does not exist. Missing columns come
// back as empty strings.
func (s *Store) ComponentMeta(ctx context.Context, compType topics.ComponentType, device string, id int) (name, location string, found bool, err error) {
	q := fmt.Sprintf(
		`SELECT name, location FROM %s WHERE device_name = ? AND id = ?`,
		compType.Table(),
	)
	err = s.query(ctx, q,
		func(rows *sql.Rows) error {
			if !rows.Next() {
				return nil
			}
			var n, l sql.NullString
			if err := rows.Scan(&n, &l); err != nil {
				return err
			}
			name, location, found = n.String, l.String, true
			return nil
		},
		device, id,
	)
	return name, location, found, err
}

// UpdateSensorValue stores a sensor reading. A nil unit falls back to
// the last known unit rather than clearing it.
func (s *Store) UpdateSensorValue(ctx context.Context, device string, id int, value any, unit *string) error {
	return s.exec(ctx,
		`UPDATE sensors
		 SET value = ?, unit = COALESCE(?, unit), last_seen = ?
		 WHERE device_name = ? AND id = ?`,
		value, unit, Now(), device, id,
	)
}

// UpdateSensorEnabled stores a sensor enable/disable acknowledgment.
func (s *Store) UpdateSensorEnabled(ctx context.Context, device string, id int, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return s.exec(ctx,
		`UPDATE sensors SET enabled = ?, last_seen = ? WHERE device_name = ? AND id = ?`,
		v, Now(), device, id,
	)
}

// UpdateActuatorState persists a terminal actuator state (0 or 1).
// Callers must have normalized the raw report first; transient states
// never reach this method.
func (s *Store) UpdateActuatorState(ctx context.Context, device string, id int, state int) error {
	return s.exec(ctx,
		`UPDATE actuators SET state = ?, last_seen = ? WHERE device_name = ? AND id = ?`,
		state, Now(), device, id,
	)
}

// TouchComponent refreshes a component's last_seen without touching
// its value or state. Used for transient actuator states.
func (s *Store) TouchComponent(ctx context.Context, compType topics.ComponentType, device string, id int) error {
	q := fmt.Sprintf(
		`UPDATE %s SET last_seen = ? WHERE device_name = ? AND id = ?`,
		compType.Table(),
	)
	return s.exec(ctx, q, Now(), device, id)
}

// UpsertAlert replaces the alert for a component. The primary key on
// (device_name, component_type, component_id) gives latest-only
// semantics; the timestamp is the router wall clock.
func (s *Store) UpsertAlert(ctx context.Context, a AlertRow) error {
	return s.exec(ctx,
		`INSERT INTO alerts (
		     device_name, component_type, component_id,
		     component_name, location, status, message, severity, code, timestamp
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_name, component_type, component_id) DO UPDATE SET
		     component_name = excluded.component_name,
		     location       = excluded.location,
		     status         = excluded.status,
		     message        = excluded.message,
		     severity       = excluded.severity,
		     code           = excluded.code,
		     timestamp      = excluded.timestamp`,
		a.DeviceName, a.ComponentType, a.ComponentID,
		a.ComponentName, a.Location, a.Status, a.Message, a.Severity, a.Code, Now(),
	)
}
