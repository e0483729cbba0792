package intent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jobichi/casita/internal/events"
	"github.com/jobichi/casita/internal/mqtt"
	"github.com/jobichi/casita/internal/snapshot"
)

// TranscriptionTopic is where the speech-to-text service publishes
// recognized utterances.
const TranscriptionTopic = "system/transcription/text"

// Pipeline wires the three stages to the broker. One instance serves
// the whole process; HandleMessage is called from the broker loop.
type Pipeline struct {
	service         string
	mirror          *snapshot.Mirror
	resolver        *Resolver
	pub             mqtt.Publisher
	bus             *events.Bus
	requireSnapshot bool
	logger          *slog.Logger
}

type PipelineOptions struct {
	// Service is this service's name; it selects the set topic and
	// which response rows belong to us.
	Service string
	// RequireSnapshot refuses commands until the mirror is usable.
	RequireSnapshot bool
}

func NewPipeline(opts PipelineOptions, mirror *snapshot.Mirror, pub mqtt.Publisher, bus *events.Bus, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		service:         opts.Service,
		mirror:          mirror,
		resolver:        NewResolver(mirror, bus, logger),
		pub:             pub,
		bus:             bus,
		requireSnapshot: opts.RequireSnapshot,
		logger:          logger.With("component", "pipeline"),
	}
}

type transcriptionPayload struct {
	Text string `json:"text"`
}

// HandleMessage routes one broker delivery: transcriptions enter the
// pipeline, everything else feeds the mirror.
func (p *Pipeline) HandleMessage(ctx context.Context, msg mqtt.Message) {
	if msg.Topic == TranscriptionTopic {
		var t transcriptionPayload
		if err := json.Unmarshal(msg.Payload, &t); err != nil {
			p.logger.Warn("transcription decode failed", "err", err)
			return
		}
		p.HandleTranscription(ctx, t.Text)
		return
	}
	p.mirror.Ingest(msg.Topic, msg.Payload)
}

// HandleTranscription runs the parse/resolve/build stages for one
// utterance and publishes the resulting command. Failures at any stage
// drop the utterance; there is no retry, the user will repeat
// themselves if it mattered.
func (p *Pipeline) HandleTranscription(ctx context.Context, text string) {
	if text == "" {
		return
	}
	p.bus.Emit(events.SourcePipeline, events.KindTranscription,
		map[string]any{"text_len": len(text)})

	if p.requireSnapshot && !p.mirror.Usable() {
		p.logger.Warn("transcription ignored, snapshot not usable", "text", text)
		return
	}

	intent, keyword := Parse(text)
	if intent == IntentUnknown {
		p.logger.Warn("no intent in transcription", "text", text)
		p.bus.Emit(events.SourcePipeline, events.KindIntentUnknown,
			map[string]any{"text_len": len(text)})
		return
	}
	p.logger.Info("intent parsed", "intent", intent, "keyword", keyword)
	p.bus.Emit(events.SourcePipeline, events.KindIntentParsed,
		map[string]any{"intent": string(intent), "keyword": keyword})

	target, pass, ok := p.resolver.Resolve(text, intent)
	if !ok {
		p.logger.Warn("no target for transcription", "text", text, "intent", intent)
		return
	}
	p.bus.Emit(events.SourcePipeline, events.KindTargetResolved, map[string]any{
		"device": target.Device, "type": string(target.Type), "id": target.ID, "pass": pass,
	})

	cmd, ok := Build(intent, target)
	if !ok {
		p.logger.Warn("intent does not apply to target",
			"intent", intent, "type", target.Type)
		return
	}

	topic := "system/set/" + p.service
	if err := mqtt.PublishJSON(ctx, p.pub, topic, 1, cmd); err != nil {
		p.logger.Error("command publish failed", "target", topic, "err", err)
		return
	}
	p.logger.Info("command published",
		"device", target.Device, "type", target.Type, "id", target.ID, "intent", intent)
	p.bus.Emit(events.SourcePipeline, events.KindCommandPublished, map[string]any{
		"device": target.Device, "type": string(target.Type), "id": target.ID,
	})
}

// RequestSnapshot asks the router for a full dump. Called on every
// broker (re-)connect so a restarted router repopulates the mirror.
func (p *Pipeline) RequestSnapshot(ctx context.Context) {
	topic := "system/select/" + p.service
	if err := mqtt.PublishJSON(ctx, p.pub, topic, 1, map[string]string{"request": "all"}); err != nil {
		p.logger.Error("snapshot request failed", "err", err)
		return
	}
	p.logger.Info("snapshot requested")
	p.bus.Emit(events.SourceSnapshot, events.KindSnapshotRequested, nil)
}
