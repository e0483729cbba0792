package intent

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"enciende la lampara del salon", IntentOn},
		{"activa el ventilador", IntentOn},
		{"prende la luz", IntentOn},
		{"apaga la lampara", IntentOff},
		{"desactiva el ventilador", IntentOff},
		{"habilita el sensor de temperatura", IntentEnable},
		{"deshabilita el sensor de humo", IntentDisable},
		{"inhabilita el sensor", IntentDisable},
		{"abre la persiana", IntentForward},
		{"sube la persiana del salon", IntentForward},
		{"cierra la puerta del patio", IntentBackward},
		{"baja la persiana", IntentBackward},
		{"para la persiana", IntentStop},
		{"detén la puerta", IntentStop},
		{"stop", IntentStop},
		{"ENCIENDE LA LUZ", IntentOn},
		{"que hora es", IntentUnknown},
		{"", IntentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, _ := Parse(tt.text)
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

// "para de abrir" must stop the blind, not open it.
func TestParse_StopBeatsMotion(t *testing.T) {
	got, kw := Parse("para de abrir la persiana")
	if got != IntentStop {
		t.Fatalf("Parse() = %v (keyword %q), want stop", got, kw)
	}
}

// "deshabilita" must not fire the enable pattern buried inside it.
func TestParse_DisableNotEnable(t *testing.T) {
	if got, _ := Parse("deshabilita el sensor"); got != IntentDisable {
		t.Errorf("Parse() = %v, want disable", got)
	}
}

func TestTargetType(t *testing.T) {
	if got := IntentEnable.TargetType(); got != "sensor" {
		t.Errorf("enable target = %q, want sensor", got)
	}
	if got := IntentForward.TargetType(); got != "actuator" {
		t.Errorf("forward target = %q, want actuator", got)
	}
	if got := IntentUnknown.TargetType(); got != "" {
		t.Errorf("unknown target = %q, want empty", got)
	}
}
