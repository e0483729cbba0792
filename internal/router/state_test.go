package router

import "testing"

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		state int
		ok    bool
	}{
		{"bool true", true, 1, true},
		{"bool false", false, 0, true},
		{"number one", float64(1), 1, true},
		{"number zero", float64(0), 0, true},
		{"number seven not terminal", float64(7), 0, false},
		{"negative number not terminal", float64(-1), 0, false},
		{"int one", 1, 1, true},
		{"int two not terminal", 2, 0, false},
		{"on", "on", 1, true},
		{"off", "off", 0, true},
		{"open uppercase", "OPEN", 1, true},
		{"opened", "opened", 1, true},
		{"closed", "closed", 0, true},
		{"spanish open", "abierto", 1, true},
		{"spanish closed", "cerrado", 0, true},
		{"enabled", "enabled", 1, true},
		{"inactive", "inactive", 0, true},
		{"compound open", "OPEN:75", 1, true},
		{"compound closed", "closed:0", 0, true},
		{"padded", "  Open  ", 1, true},
		{"transient opening", "opening", 0, false},
		{"transient closing", "closing", 0, false},
		{"transient stop", "stop", 0, false},
		{"transient moving", "moving", 0, false},
		{"garbage", "banana", 0, false},
		{"wrong type", map[string]any{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, _, ok := normalizeState(tt.raw)
			if ok != tt.ok {
				t.Fatalf("normalizeState(%v) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && state != tt.state {
				t.Errorf("normalizeState(%v) = %d, want %d", tt.raw, state, tt.state)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	for _, s := range []string{"opening", "CLOSING", "stop", "stopped", "moving", "forward", "backward"} {
		if !isTransient(s) {
			t.Errorf("isTransient(%q) = false, want true", s)
		}
	}
	for _, v := range []any{"open", "banana", true, float64(1)} {
		if isTransient(v) {
			t.Errorf("isTransient(%v) = true, want false", v)
		}
	}
}

func TestNormalizeBool(t *testing.T) {
	truthy := []any{true, float64(1), "on", "yes", "enabled", "TRUE", "1"}
	for _, v := range truthy {
		if !normalizeBool(v) {
			t.Errorf("normalizeBool(%v) = false, want true", v)
		}
	}
	falsy := []any{false, float64(0), "off", "banana", nil, "stop"}
	for _, v := range falsy {
		if normalizeBool(v) {
			t.Errorf("normalizeBool(%v) = true, want false", v)
		}
	}
}

func TestAsInt(t *testing.T) {
	if n, ok := asInt(float64(7)); !ok || n != 7 {
		t.Errorf("asInt(7.0) = %d, %v", n, ok)
	}
	if n, ok := asInt(" 42 "); !ok || n != 42 {
		t.Errorf("asInt(\" 42 \") = %d, %v", n, ok)
	}
	if _, ok := asInt("x"); ok {
		t.Error("asInt(x) accepted")
	}
	if _, ok := asInt(nil); ok {
		t.Error("asInt(nil) accepted")
	}
}
