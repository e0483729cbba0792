package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jobichi/casita/internal/topics"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertDevice_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.UpsertDevice(ctx, "esp_salon"); err != nil {
			t.Fatalf("UpsertDevice() error = %v", err)
		}
	}

	devices, err := s.SelectDevices(ctx)
	if err != nil {
		t.Fatalf("SelectDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("devices = %d rows, want 1", len(devices))
	}
	if devices[0].DeviceName != "esp_salon" {
		t.Errorf("device_name = %q, want esp_salon", devices[0].DeviceName)
	}
}

func TestUpsertComponentMeta_PreservesValue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDevice(ctx, "esp_salon"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertComponentMeta(ctx, topics.Sensor, "esp_salon", 3, "lampara", "salon"); err != nil {
		t.Fatalf("UpsertComponentMeta() error = %v", err)
	}

	unit := "C"
	if err := s.UpdateSensorValue(ctx, "esp_salon", 3, 23.4, &unit); err != nil {
		t.Fatalf("UpdateSensorValue() error = %v", err)
	}

	// A re-announce must rename without clobbering the reading.
	if err := s.UpsertComponentMeta(ctx, topics.Sensor, "esp_salon", 3, "temperatura", "salon"); err != nil {
		t.Fatalf("re-announce error = %v", err)
	}

	rows, err := s.SelectSensors(ctx, "esp_salon", nil)
	if err != nil {
		t.Fatalf("SelectSensors() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("sensors = %d rows, want 1", len(rows))
	}
	r := rows[0]
	if r.Name == nil || *r.Name != "temperatura" {
		t.Errorf("name = %v, want temperatura", r.Name)
	}
	if r.Value != 23.4 {
		t.Errorf("value = %v (%T), want 23.4", r.Value, r.Value)
	}
	if r.Unit == nil || *r.Unit != "C" {
		t.Errorf("unit = %v, want C", r.Unit)
	}
}

func TestUpdateSensorValue_UnitFallback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertDevice(ctx, "esp_salon")
	s.UpsertComponentMeta(ctx, topics.Sensor, "esp_salon", 3, "temperatura", "salon")

	unit := "C"
	if err := s.UpdateSensorValue(ctx, "esp_salon", 3, 21.0, &unit); err != nil {
		t.Fatal(err)
	}
	// Second reading without a unit keeps the last known one.
	if err := s.UpdateSensorValue(ctx, "esp_salon", 3, 22.5, nil); err != nil {
		t.Fatal(err)
	}

	rows, _ := s.SelectSensors(ctx, "esp_salon", nil)
	if rows[0].Unit == nil || *rows[0].Unit != "C" {
		t.Errorf("unit = %v, want C (fallback to last known)", rows[0].Unit)
	}
	if rows[0].Value != 22.5 {
		t.Errorf("value = %v, want 22.5", rows[0].Value)
	}
}

func TestActuatorState_NilUntilTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertDevice(ctx, "esp_puerta")
	s.UpsertComponentMeta(ctx, topics.Actuator, "esp_puerta", 0, "persiana", "dormitorio")

	rows, _ := s.SelectActuators(ctx, "esp_puerta", nil)
	if rows[0].State != nil {
		t.Errorf("state = %v, want nil before first terminal report", rows[0].State)
	}

	if err := s.UpdateActuatorState(ctx, "esp_puerta", 0, 1); err != nil {
		t.Fatal(err)
	}
	rows, _ = s.SelectActuators(ctx, "esp_puerta", nil)
	if rows[0].State == nil || *rows[0].State != 1 {
		t.Errorf("state = %v, want 1", rows[0].State)
	}

	// Touch refreshes last_seen but never the state.
	if err := s.TouchComponent(ctx, topics.Actuator, "esp_puerta", 0); err != nil {
		t.Fatal(err)
	}
	rows, _ = s.SelectActuators(ctx, "esp_puerta", nil)
	if rows[0].State == nil || *rows[0].State != 1 {
		t.Errorf("state after touch = %v, want 1", rows[0].State)
	}
}

func TestUpsertAlert_LatestOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertDevice(ctx, "esp_salon")

	name := "lampara"
	for _, severity := range []string{"low", "high", "medium"} {
		err := s.UpsertAlert(ctx, AlertRow{
			DeviceName:    "esp_salon",
			ComponentType: "sensor",
			ComponentID:   3,
			ComponentName: &name,
			Status:        "ALERT",
			Message:       "threshold exceeded",
			Severity:      severity,
		})
		if err != nil {
			t.Fatalf("UpsertAlert(%s) error = %v", severity, err)
		}
	}

	alerts, err := s.SelectAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("SelectAlerts() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d rows, want 1", len(alerts))
	}
	if alerts[0].Severity != "medium" {
		t.Errorf("severity = %q, want medium (last write wins)", alerts[0].Severity)
	}
}

func TestSelectAlerts_SeverityOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertDevice(ctx, "esp_salon")
	for i, severity := range []string{"low", "high", "medium"} {
		s.UpsertAlert(ctx, AlertRow{
			DeviceName:    "esp_salon",
			ComponentType: "sensor",
			ComponentID:   i,
			Status:        "ALERT",
			Severity:      severity,
		})
	}

	alerts, err := s.SelectAlerts(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 3 {
		t.Fatalf("alerts = %d rows, want 3", len(alerts))
	}
	want := []string{"high", "medium", "low"}
	for i, a := range alerts {
		if a.Severity != want[i] {
			t.Errorf("alerts[%d].Severity = %q, want %q", i, a.Severity, want[i])
		}
	}

	limited, err := s.SelectAlerts(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("alerts with limit 2 = %d rows, want 2", len(limited))
	}
}

func TestComponentMeta(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertDevice(ctx, "esp_salon")
	s.UpsertComponentMeta(ctx, topics.Actuator, "esp_salon", 1, "lampara", "salon")

	name, location, found, err := s.ComponentMeta(ctx, topics.Actuator, "esp_salon", 1)
	if err != nil {
		t.Fatalf("ComponentMeta() error = %v", err)
	}
	if !found {
		t.Fatal("ComponentMeta() found = false, want true")
	}
	if name != "lampara" || location != "salon" {
		t.Errorf("meta = (%q, %q), want (lampara, salon)", name, location)
	}

	_, _, found, err = s.ComponentMeta(ctx, topics.Actuator, "unknown", 42)
	if err != nil {
		t.Fatalf("ComponentMeta(missing) error = %v", err)
	}
	if found {
		t.Error("ComponentMeta(missing) found = true, want false")
	}
}

func TestEnsureComponent_DoesNotOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertDevice(ctx, "esp_salon")
	s.UpsertComponentMeta(ctx, topics.Sensor, "esp_salon", 3, "lampara", "salon")

	if err := s.EnsureComponent(ctx, topics.Sensor, "esp_salon", 3); err != nil {
		t.Fatalf("EnsureComponent() error = %v", err)
	}

	rows, _ := s.SelectSensors(ctx, "esp_salon", nil)
	if len(rows) != 1 {
		t.Fatalf("sensors = %d rows, want 1", len(rows))
	}
	if rows[0].Name == nil || *rows[0].Name != "lampara" {
		t.Errorf("name = %v, want lampara (ensure must not overwrite)", rows[0].Name)
	}
}

func TestSelectSensors_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, d := range []string{"esp_salon", "esp_cocina"} {
		s.UpsertDevice(ctx, d)
		s.UpsertComponentMeta(ctx, topics.Sensor, d, 0, "temp", d)
		s.UpsertComponentMeta(ctx, topics.Sensor, d, 1, "hum", d)
	}

	all, _ := s.SelectSensors(ctx, "", nil)
	if len(all) != 4 {
		t.Errorf("all sensors = %d rows, want 4", len(all))
	}

	byDevice, _ := s.SelectSensors(ctx, "esp_salon", nil)
	if len(byDevice) != 2 {
		t.Errorf("esp_salon sensors = %d rows, want 2", len(byDevice))
	}

	id := 1
	one, _ := s.SelectSensors(ctx, "esp_cocina", &id)
	if len(one) != 1 || one[0].ID != 1 {
		t.Errorf("esp_cocina/1 = %+v, want single row id=1", one)
	}
}
