package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithLevel(WarnLevel),
		WithFormatter(&TextFormatter{}),
		WithOutput(&WriterOutput{W: &buf}),
	)
	logger.Info("dropped")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWithFieldsAccumulate(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithLevel(DebugLevel),
		WithFormatter(&TextFormatter{}),
		WithOutput(&WriterOutput{W: &buf}),
	)
	child := logger.With(Str("component", "bridge"))
	child.Info("tick", Int("count", 3))
	out := buf.String()
	if !strings.Contains(out, "component=bridge") || !strings.Contains(out, "count=3") {
		t.Fatalf("fields missing: %q", out)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithLevel(InfoLevel),
		WithFormatter(&JSONFormatter{}),
		WithOutput(&WriterOutput{W: &buf}),
	)
	logger.Info("hello", Str("k", "v"))
	var obj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if obj["msg"] != "hello" || obj["k"] != "v" || obj["level"] != "INFO" {
		t.Fatalf("unexpected object: %v", obj)
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("debug"); err != nil || l != DebugLevel {
		t.Fatalf("debug: %v %v", l, err)
	}
	if _, err := ParseLevel("nope"); err == nil {
		t.Fatalf("want error for unknown level")
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("want error")
	}
}
