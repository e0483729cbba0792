package router

import (
	"strconv"
	"strings"
)

// Actuator state words fall into three buckets. Terminal words collapse to
// the stored 0/1 projection, transient words describe motion in progress and
// must never overwrite the last settled state, and anything else is noise
// from a misbehaving device.
var (
	openWords = map[string]struct{}{
		"true": {}, "on": {}, "1": {}, "yes": {},
		"active": {}, "enabled": {},
		"open": {}, "opened": {}, "abierto": {},
	}
	closedWords = map[string]struct{}{
		"false": {}, "off": {}, "0": {}, "no": {},
		"inactive": {}, "disabled": {},
		"close": {}, "closed": {}, "cerrado": {},
	}
	transientWords = map[string]struct{}{
		"opening": {}, "closing": {}, "moving": {},
		"stop": {}, "stopped": {},
		"forward": {}, "backward": {},
	}
)

// normalizeState maps a raw actuator state from a device payload to the
// persisted 0/1 projection. ok is false for transient states ("opening",
// "stop", ...) and for values we do not recognize at all; callers refresh
// last_seen but leave the stored state alone in that case. text carries the
// original string form when the input was a string, so fan-out messages can
// echo what the device actually said.
func normalizeState(raw any) (state int, text string, ok bool) {
	switch v := raw.(type) {
	case bool:
		if v {
			return 1, "", true
		}
		return 0, "", true
	case float64:
		// Only 0 and 1 are terminal numerics; 7 from a confused device
		// must not be collapsed to "open".
		if v == 0 || v == 1 {
			return int(v), "", true
		}
		return 0, "", false
	case int:
		if v == 0 || v == 1 {
			return v, "", true
		}
		return 0, "", false
	case string:
		text = v
		// Compound forms like "OPEN:75" carry a position after the
		// colon; only the leading token decides the stored state.
		word := strings.ToLower(strings.TrimSpace(v))
		if i := strings.IndexByte(word, ':'); i >= 0 {
			word = strings.TrimSpace(word[:i])
		}
		if _, hit := openWords[word]; hit {
			return 1, text, true
		}
		if _, hit := closedWords[word]; hit {
			return 0, text, true
		}
		return 0, text, false
	default:
		return 0, "", false
	}
}

// isTransient reports whether a raw state is a recognized in-motion word.
// The distinction matters for logging: transient states are expected
// traffic, unrecognized values are not.
func isTransient(raw any) bool {
	s, isStr := raw.(string)
	if !isStr {
		return false
	}
	word := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(word, ':'); i >= 0 {
		word = strings.TrimSpace(word[:i])
	}
	_, hit := transientWords[word]
	return hit
}

// normalizeBool coerces the loose truthy values services put in set
// requests. Unrecognized strings are false.
func normalizeBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		_, hit := openWords[strings.ToLower(strings.TrimSpace(v))]
		return hit
	default:
		return false
	}
}

// optString converts "" to nil for nullable columns.
func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// asInt accepts the id forms services actually send: JSON numbers and
// numeric strings.
func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
