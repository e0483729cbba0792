package store

import (
	"context"
	"database/sql"
)

// SelectDevices returns every device row ordered by name.
func (s *Store) SelectDevices(ctx context.Context) ([]DeviceRow, error) {
	var out []DeviceRow
	err := s.query(ctx,
		`SELECT device_name, last_seen FROM devices ORDER BY device_name`,
		func(rows *sql.Rows) error {
			for rows.Next() {
				var d DeviceRow
				if err := rows.Scan(&d.DeviceName, &d.LastSeen); err != nil {
					return err
				}
				out = append(out, d)
			}
			return nil
		},
	)
	return out, err
}

// SelectSensors returns sensor rows, optionally filtered by device and
// id. An empty device selects all devices; a nil id selects all
// components of the device.
func (s *Store) SelectSensors(ctx context.Context, device string, id *int) ([]SensorRow, error) {
	q := `SELECT id, device_name, name, location, value, unit, enabled, last_seen FROM sensors`
	var args []any
	switch {
	case device != "" && id != nil:
		q += ` WHERE device_name = ? AND id = ?`
		args = append(args, device, *id)
	case device != "":
		q += ` WHERE device_name = ? ORDER BY id`
		args = append(args, device)
	default:
		q += ` ORDER BY device_name, id`
	}

	var out []SensorRow
	err := s.query(ctx, q,
		func(rows *sql.Rows) error {
			for rows.Next() {
				var r SensorRow
				var name, location, unit sql.NullString
				var enabled sql.NullInt64
				var value any
				if err := rows.Scan(&r.ID, &r.DeviceName, &name, &location, &value, &unit, &enabled, &r.LastSeen); err != nil {
					return err
				}
				r.Name = nullString(name)
				r.Location = nullString(location)
				r.Unit = nullString(unit)
				r.Value = normalizeValue(value)
				if enabled.Valid {
					v := int(enabled.Int64)
					r.Enabled = &v
				}
				out = append(out, r)
			}
			return nil
		},
		args...,
	)
	return out, err
}

// SelectActuators returns actuator rows with the same filtering rules
// as SelectSensors.
func (s *Store) SelectActuators(ctx context.Context, device string, id *int) ([]ActuatorRow, error) {
	q := `SELECT id, device_name, name, location, state, last_seen FROM actuators`
	var args []any
	switch {
	case device != "" && id != nil:
		q += ` WHERE device_name = ? AND id = ?`
		args = append(args, device, *id)
	case device != "":
		q += ` WHERE device_name = ? ORDER BY id`
		args = append(args, device)
	default:
		q += ` ORDER BY device_name, id`
	}

	var out []ActuatorRow
	err := s.query(ctx, q,
		func(rows *sql.Rows) error {
			for rows.Next() {
				var r ActuatorRow
				var name, location sql.NullString
				var state sql.NullInt64
				if err := rows.Scan(&r.ID, &r.DeviceName, &name, &location, &state, &r.LastSeen); err != nil {
					return err
				}
				r.Name = nullString(name)
				r.Location = nullString(location)
				if state.Valid {
					v := int(state.Int64)
					r.State = &v
				}
				out = append(out, r)
			}
			return nil
		},
		args...,
	)
	return out, err
}

// SelectAlerts returns alerts ordered most severe first, newest first
// within a severity. limit <= 0 means no limit. Severity is free text
// on write; only the three known values rank, anything else sorts
// last.
func (s *Store) SelectAlerts(ctx context.Context, limit int) ([]AlertRow, error) {
	q := `SELECT device_name, component_type, component_id, component_name,
	             location, status, message, severity, code, timestamp
	      FROM alerts
	      ORDER BY CASE severity
	                   WHEN 'high' THEN 3
	                   WHEN 'medium' THEN 2
	                   WHEN 'low' THEN 1
	                   ELSE 0
	               END DESC,
	               timestamp DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var out []AlertRow
	err := s.query(ctx, q,
		func(rows *sql.Rows) error {
			for rows.Next() {
				var r AlertRow
				var compName, location, status, message, severity, code sql.NullString
				if err := rows.Scan(&r.DeviceName, &r.ComponentType, &r.ComponentID,
					&compName, &location, &status, &message, &severity, &code, &r.Timestamp); err != nil {
					return err
				}
				r.ComponentName = nullString(compName)
				r.Location = nullString(location)
				r.Status = status.String
				r.Message = message.String
				r.Severity = severity.String
				r.Code = nullString(code)
				out = append(out, r)
			}
			return nil
		},
		args...,
	)
	return out, err
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// normalizeValue converts driver-native column values into types that
// JSON-marshal cleanly. SQLite hands TEXT back as []byte.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
