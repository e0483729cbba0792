package snapshot

import (
	"testing"

	"github.com/jobichi/casita/internal/topics"
)

func newTestMirror() *Mirror {
	return New("intent-service", nil, nil)
}

func TestIngest_DumpRows(t *testing.T) {
	m := newTestMirror()

	if m.Usable() {
		t.Fatal("mirror usable before any ingest")
	}

	m.Ingest("system/response/intent-service/devices/esp_salon",
		[]byte(`{"device_name":"esp_salon","last_seen":"2026-08-26 10:00:00"}`))
	m.Ingest("system/response/intent-service/sensors/esp_salon/3",
		[]byte(`{"id":3,"device_name":"esp_salon","name":"temperatura","location":"salon","value":23.4,"unit":"C","last_seen":"2026-08-26 10:00:00"}`))
	m.Ingest("system/response/intent-service/actuators/esp_patio/1",
		[]byte(`{"id":1,"device_name":"esp_patio","name":"puerta","location":"patio","state":1,"last_seen":"2026-08-26 10:00:00"}`))

	if !m.Usable() {
		t.Error("mirror not usable after dump rows")
	}
	if got := m.DeviceCount(); got != 1 {
		t.Errorf("DeviceCount() = %d, want 1", got)
	}

	sensors := m.Sensors()
	if len(sensors) != 1 || sensors[0].Name != "temperatura" || sensors[0].Value != 23.4 {
		t.Errorf("sensors = %+v", sensors)
	}
	actuators := m.Actuators()
	if len(actuators) != 1 || actuators[0].State == nil || *actuators[0].State != 1 {
		t.Errorf("actuators = %+v", actuators)
	}
}

func TestIngest_EmptySentinelMarksUsable(t *testing.T) {
	m := newTestMirror()

	m.Ingest("system/response/intent-service/sensors/empty",
		[]byte(`{"status":"no_results"}`))

	if !m.Usable() {
		t.Error("sentinel alone should mark the mirror usable")
	}
	if len(m.Sensors()) != 0 {
		t.Errorf("sensors = %+v, want none", m.Sensors())
	}
}

func TestIngest_AnnounceMarksUsable(t *testing.T) {
	m := newTestMirror()

	// A service started against an empty router must still come ready
	// once a device registers live, without waiting for a dump.
	m.Ingest("system/notify/esp_salon/announce",
		[]byte(`{"device":"esp_salon","type":"actuator","id":1,"name":"persiana","location":"salon","status":"registered"}`))

	if !m.Usable() {
		t.Error("mirror not usable after live announce")
	}
	if got := m.Actuators(); len(got) != 1 || got[0].Name != "persiana" {
		t.Errorf("actuators = %+v", got)
	}
}

func TestIngest_OtherServiceIgnored(t *testing.T) {
	m := newTestMirror()

	m.Ingest("system/response/telegram-service/sensors/esp_salon/3",
		[]byte(`{"id":3,"device_name":"esp_salon"}`))

	if m.Usable() || len(m.Sensors()) != 0 {
		t.Error("rows for another service must be ignored")
	}
}

func TestIngest_AnnounceUpsertsAndUnregisters(t *testing.T) {
	m := newTestMirror()

	m.Ingest("system/notify/esp_salon/announce",
		[]byte(`{"device":"esp_salon","type":"sensor","id":3,"name":"temperatura","location":"salon","status":"registered"}`))

	sensors := m.Sensors()
	if len(sensors) != 1 || sensors[0].Location != "salon" {
		t.Fatalf("sensors after announce = %+v", sensors)
	}

	// A rename keeps the key and overwrites metadata.
	m.Ingest("system/notify/esp_salon/announce",
		[]byte(`{"device":"esp_salon","type":"sensor","id":3,"name":"termostato","location":"salon","status":"registered"}`))
	if got := m.Sensors(); len(got) != 1 || got[0].Name != "termostato" {
		t.Errorf("sensors after rename = %+v", got)
	}

	m.Ingest("system/notify/esp_salon/announce",
		[]byte(`{"device":"esp_salon","type":"sensor","id":3,"status":"unregistered"}`))
	if got := m.Sensors(); len(got) != 0 {
		t.Errorf("sensors after unregister = %+v", got)
	}
}

func TestIngest_UpdateRefreshesValues(t *testing.T) {
	m := newTestMirror()

	m.Ingest("system/notify/esp_salon/announce",
		[]byte(`{"device":"esp_salon","type":"sensor","id":3,"name":"temperatura","location":"salon"}`))
	m.Ingest("system/notify/esp_salon/update",
		[]byte(`{"device":"esp_salon","type":"sensor","id":3,"value":19.5,"units":"C","timestamp":"2026-08-26 11:00:00"}`))

	sensors := m.Sensors()
	if sensors[0].Value != 19.5 || sensors[0].Unit != "C" {
		t.Errorf("sensor after update = %+v", sensors[0])
	}
	if sensors[0].LastSeen != "2026-08-26 11:00:00" {
		t.Errorf("last_seen = %q", sensors[0].LastSeen)
	}
}

func TestIngest_NullStateKeepsSettled(t *testing.T) {
	m := newTestMirror()

	m.Ingest("system/notify/esp_patio/announce",
		[]byte(`{"device":"esp_patio","type":"actuator","id":1,"name":"puerta","location":"patio"}`))
	m.Ingest("system/notify/esp_patio/update",
		[]byte(`{"device":"esp_patio","type":"actuator","id":1,"state":0,"timestamp":"t1"}`))
	// Mid-motion report: state null, only the timestamp moves.
	m.Ingest("system/notify/esp_patio/update",
		[]byte(`{"device":"esp_patio","type":"actuator","id":1,"state":null,"state_text":"opening","timestamp":"t2"}`))

	a := m.Actuators()[0]
	if a.State == nil || *a.State != 0 {
		t.Errorf("state = %v, want settled 0", a.State)
	}
	if a.LastSeen != "t2" {
		t.Errorf("last_seen = %q, want t2", a.LastSeen)
	}
}

func TestComponents_CombinesTables(t *testing.T) {
	m := newTestMirror()

	m.Ingest("system/notify/esp_salon/announce",
		[]byte(`{"device":"esp_salon","type":"sensor","id":3,"name":"temperatura","location":"salon"}`))
	m.Ingest("system/notify/esp_patio/announce",
		[]byte(`{"device":"esp_patio","type":"actuator","id":1,"name":"puerta","location":"patio"}`))

	all := m.Components()
	if len(all) != 2 {
		t.Fatalf("Components() = %d rows, want 2", len(all))
	}
	types := map[topics.ComponentType]bool{}
	for _, c := range all {
		types[c.Type] = true
	}
	if !types[topics.Sensor] || !types[topics.Actuator] {
		t.Errorf("types = %v", types)
	}
}
