package intent

import (
	"log/slog"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/jobichi/casita/internal/events"
	"github.com/jobichi/casita/internal/snapshot"
	"github.com/jobichi/casita/internal/topics"
)

// fuzzyThreshold is the minimum PartialRatio score a fuzzy candidate
// must strictly exceed. Below it, doing nothing beats actuating the
// wrong device.
const fuzzyThreshold = 85

// Resolver finds the component an utterance refers to.
type Resolver struct {
	mirror *snapshot.Mirror
	bus    *events.Bus
	logger *slog.Logger
}

func NewResolver(mirror *snapshot.Mirror, bus *events.Bus, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{mirror: mirror, bus: bus, logger: logger.With("component", "resolver")}
}

// Resolve returns the component the text refers to, given the intent's
// target table. Four passes, short-circuiting on the first hit: name
// and location both as substrings, name only, location only, then a
// global fuzzy pass that demands a strict single winner. The pass
// number (1-4) is returned for observability.
func (r *Resolver) Resolve(text string, intent Intent) (snapshot.Component, int, bool) {
	targetType := intent.TargetType()
	if text == "" || targetType == "" {
		return snapshot.Component{}, 0, false
	}

	var candidates []snapshot.Component
	if targetType == string(topics.Sensor) {
		candidates = r.mirror.Sensors()
	} else {
		candidates = r.mirror.Actuators()
	}

	norm := strings.ToLower(text)

	for _, c := range candidates {
		name, location := strings.ToLower(c.Name), strings.ToLower(c.Location)
		if name != "" && location != "" &&
			strings.Contains(norm, name) && strings.Contains(norm, location) {
			return c, 1, true
		}
	}
	for _, c := range candidates {
		if name := strings.ToLower(c.Name); name != "" && strings.Contains(norm, name) {
			return c, 2, true
		}
	}
	for _, c := range candidates {
		if loc := strings.ToLower(c.Location); loc != "" && strings.Contains(norm, loc) {
			return c, 3, true
		}
	}

	if c, ok := r.fuzzyMatch(norm, candidates); ok {
		return c, 4, true
	}

	r.logger.Warn("no target resolved", "type", targetType, "candidates", len(candidates))
	return snapshot.Component{}, 0, false
}

// fuzzyMatch scores every candidate and returns one only when it both
// clears the threshold and has no rival at the same score. A tie means
// the utterance is ambiguous and the command is refused.
func (r *Resolver) fuzzyMatch(text string, candidates []snapshot.Component) (snapshot.Component, bool) {
	var best snapshot.Component
	bestScore := fuzzyThreshold
	found, tie := false, false

	for _, c := range candidates {
		score := 0
		if name := strings.ToLower(c.Name); name != "" {
			score = fuzzy.PartialRatio(text, name)
		}
		if loc := strings.ToLower(c.Location); loc != "" {
			if s := fuzzy.PartialRatio(text, loc); s > score {
				score = s
			}
		}

		if score > bestScore {
			best, bestScore = c, score
			found, tie = true, false
		} else if score == bestScore && found {
			tie = true
		}
	}

	if !found || tie {
		if tie {
			r.logger.Warn("fuzzy match ambiguous", "score", bestScore)
			r.bus.Emit(events.SourcePipeline, events.KindTargetAmbiguous,
				map[string]any{"score": bestScore, "candidates": len(candidates)})
		}
		return snapshot.Component{}, false
	}
	r.logger.Info("fuzzy match",
		"device", best.Device, "id", best.ID, "score", bestScore)
	return best, true
}
