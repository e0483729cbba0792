package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunVersionText(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"version"}); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), "casita") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestRunVersionJSON(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run(-o json version) error = %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if info["version"] == "" {
		t.Error("version field missing")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"bogus"}); err == nil {
		t.Error("run(bogus) succeeded, want error")
	}
}

func TestRunUnknownFlag(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-bogus"}); err == nil {
		t.Error("run(-bogus) succeeded, want error")
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, nil); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("usage output = %q", out.String())
	}
}

func TestRunBadOutputFormat(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-o", "yaml", "version"}); err == nil {
		t.Error("run(-o yaml) succeeded, want error")
	}
}

func TestRunMissingExplicitConfig(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"-config", "/nonexistent/config.yaml", "healthcheck"})
	if err == nil {
		t.Error("run with missing explicit config succeeded, want error")
	}
}
