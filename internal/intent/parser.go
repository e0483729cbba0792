// Package intent turns voice transcriptions into validated commands.
// Three stages, each a pure function: parse the utterance into an
// intent, resolve the target component against the snapshot mirror,
// and build the set payload the router expects.
package intent

import "regexp"

// Intent is the recognized action in an utterance.
type Intent string

const (
	IntentUnknown  Intent = "unknown"
	IntentOn       Intent = "on"
	IntentOff      Intent = "off"
	IntentEnable   Intent = "enable"
	IntentDisable  Intent = "disable"
	IntentForward  Intent = "forward"
	IntentBackward Intent = "backward"
	IntentStop     Intent = "stop"
)

// pattern binds an intent to the keyword family that triggers it.
type pattern struct {
	intent Intent
	re     *regexp.Regexp
}

// patterns is evaluated in order; the first match wins. STOP comes
// before the motion intents so "para de abrir" stops the blind instead
// of opening it.
var patterns = []pattern{
	{IntentStop, regexp.MustCompile(`(?i)\b(para|parar|det[eé]n|detener|stop)\b`)},
	{IntentForward, regexp.MustCompile(`(?i)\b(abre|abrir|sube|subir|open)\b`)},
	{IntentBackward, regexp.MustCompile(`(?i)\b(cierra|cerrar|baja|bajar|close)\b`)},
	{IntentEnable, regexp.MustCompile(`(?i)\b(habilita|habilitar)\b`)},
	{IntentDisable, regexp.MustCompile(`(?i)\b(deshabilita|deshabilitar|inhabilita|inhabilitar)\b`)},
	{IntentOn, regexp.MustCompile(`(?i)\b(enciende|encender|activa|activar|prende|prender)\b`)},
	{IntentOff, regexp.MustCompile(`(?i)\b(apaga|apagar|desactiva|desactivar)\b`)},
}

// Parse returns the intent detected in text and the keyword that
// triggered it. Empty or unrecognized text yields IntentUnknown.
func Parse(text string) (Intent, string) {
	if text == "" {
		return IntentUnknown, ""
	}
	for _, p := range patterns {
		if kw := p.re.FindString(text); kw != "" {
			return p.intent, kw
		}
	}
	return IntentUnknown, ""
}

// TargetType reports which component table an intent operates on.
func (i Intent) TargetType() string {
	switch i {
	case IntentEnable, IntentDisable:
		return "sensor"
	case IntentOn, IntentOff, IntentForward, IntentBackward, IntentStop:
		return "actuator"
	default:
		return ""
	}
}
