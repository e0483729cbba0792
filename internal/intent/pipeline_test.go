package intent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jobichi/casita/internal/mqtt"
	"github.com/jobichi/casita/internal/snapshot"
)

type recordingPub struct {
	topics   []string
	payloads [][]byte
}

func (r *recordingPub) Publish(_ context.Context, topic string, _ byte, payload []byte) error {
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return nil
}

func newTestPipeline(t *testing.T, requireSnapshot bool) (*Pipeline, *snapshot.Mirror, *recordingPub) {
	t.Helper()
	m := snapshot.New("intent-service", nil, nil)
	pub := &recordingPub{}
	p := NewPipeline(PipelineOptions{Service: "intent-service", RequireSnapshot: requireSnapshot}, m, pub, nil, nil)
	return p, m, pub
}

func seed(m *snapshot.Mirror) {
	m.Ingest("system/notify/esp_salon/announce",
		[]byte(`{"device":"esp_salon","type":"actuator","id":1,"name":"lampara","location":"salon"}`))
	// A dump sentinel marks the mirror usable.
	m.Ingest("system/response/intent-service/sensors/empty", []byte(`{"status":"no_results"}`))
}

func TestPipeline_EndToEnd(t *testing.T) {
	p, m, pub := newTestPipeline(t, true)
	seed(m)

	p.HandleTranscription(context.Background(), "enciende la lampara del salon")

	if len(pub.topics) != 1 || pub.topics[0] != "system/set/intent-service" {
		t.Fatalf("published to %v, want system/set/intent-service", pub.topics)
	}
	var cmd map[string]any
	if err := json.Unmarshal(pub.payloads[0], &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd["device"] != "esp_salon" || cmd["state"] != true {
		t.Errorf("cmd = %v", cmd)
	}
}

func TestPipeline_SnapshotGate(t *testing.T) {
	p, m, pub := newTestPipeline(t, true)
	// Mirror has a component but never saw a dump answer.
	m.Ingest("system/notify/esp_salon/announce",
		[]byte(`{"device":"esp_salon","type":"actuator","id":1,"name":"lampara","location":"salon"}`))

	p.HandleTranscription(context.Background(), "enciende la lampara")

	if len(pub.topics) != 0 {
		t.Errorf("published %v, want nothing before the snapshot is usable", pub.topics)
	}
}

func TestPipeline_GateDisabled(t *testing.T) {
	p, m, pub := newTestPipeline(t, false)
	m.Ingest("system/notify/esp_salon/announce",
		[]byte(`{"device":"esp_salon","type":"actuator","id":1,"name":"lampara","location":"salon"}`))

	p.HandleTranscription(context.Background(), "enciende la lampara")

	if len(pub.topics) != 1 {
		t.Errorf("published %v, want the command", pub.topics)
	}
}

func TestPipeline_UnknownIntentDropped(t *testing.T) {
	p, m, pub := newTestPipeline(t, true)
	seed(m)

	p.HandleTranscription(context.Background(), "que hora es")

	if len(pub.topics) != 0 {
		t.Errorf("published %v, want nothing", pub.topics)
	}
}

func TestPipeline_HandleMessageRoutes(t *testing.T) {
	p, m, pub := newTestPipeline(t, true)
	ctx := context.Background()

	// Mirror traffic goes to the mirror.
	p.HandleMessage(ctx, mqtt.Message{
		Topic:   "system/notify/esp_salon/announce",
		Payload: []byte(`{"device":"esp_salon","type":"actuator","id":1,"name":"lampara","location":"salon"}`),
	})
	p.HandleMessage(ctx, mqtt.Message{
		Topic:   "system/response/intent-service/actuators/esp_salon/1",
		Payload: []byte(`{"id":1,"device_name":"esp_salon","name":"lampara","location":"salon"}`),
	})
	if !m.Usable() {
		t.Fatal("mirror not fed by HandleMessage")
	}

	// A transcription enters the pipeline.
	p.HandleMessage(ctx, mqtt.Message{
		Topic:   TranscriptionTopic,
		Payload: []byte(`{"text":"apaga la lampara"}`),
	})
	if len(pub.topics) != 1 {
		t.Fatalf("published %v, want one command", pub.topics)
	}
}

func TestPipeline_RequestSnapshot(t *testing.T) {
	p, _, pub := newTestPipeline(t, true)

	p.RequestSnapshot(context.Background())

	if len(pub.topics) != 1 || pub.topics[0] != "system/select/intent-service" {
		t.Fatalf("published to %v", pub.topics)
	}
	var req map[string]string
	if err := json.Unmarshal(pub.payloads[0], &req); err != nil {
		t.Fatal(err)
	}
	if req["request"] != "all" {
		t.Errorf("request = %v, want all", req)
	}
}
