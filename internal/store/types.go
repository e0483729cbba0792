package store

// DeviceRow mirrors one devices row. Field names follow the wire
// contract: device_name is the historical column spelling and appears
// verbatim in select dumps.
type DeviceRow struct {
	DeviceName string `json:"device_name"`
	LastSeen   string `json:"last_seen"`
	SnapshotTS string `json:"snapshot_ts,omitempty"`
}

// SensorRow mirrors one sensors row.
type SensorRow struct {
	ID         int     `json:"id"`
	DeviceName string  `json:"device_name"`
	Name       *string `json:"name"`
	Location   *string `json:"location"`
	Value      any     `json:"value"`
	Unit       *string `json:"unit"`
	Enabled    *int    `json:"enabled"`
	LastSeen   string  `json:"last_seen"`
	SnapshotTS string  `json:"snapshot_ts,omitempty"`
}

// ActuatorRow mirrors one actuators row. State is nil until the first
// terminal state is persisted.
type ActuatorRow struct {
	ID         int     `json:"id"`
	DeviceName string  `json:"device_name"`
	Name       *string `json:"name"`
	Location   *string `json:"location"`
	State      *int    `json:"state"`
	LastSeen   string  `json:"last_seen"`
	SnapshotTS string  `json:"snapshot_ts,omitempty"`
}

// AlertRow mirrors one alerts row — the latest alert for a component.
type AlertRow struct {
	DeviceName    string  `json:"device_name"`
	ComponentType string  `json:"component_type"`
	ComponentID   int     `json:"component_id"`
	ComponentName *string `json:"component_name"`
	Location      *string `json:"location"`
	Status        string  `json:"status"`
	Message       string  `json:"message"`
	Severity      string  `json:"severity"`
	Code          *string `json:"code"`
	Timestamp     string  `json:"timestamp"`
}
