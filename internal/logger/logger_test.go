package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf))
	l.Info("hello", "key", "value")

	out := buf.String()
	for _, want := range []string{"hello", "key", "value"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	New(WithWriter(&buf), WithDebug(false)).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug written without WithDebug: %q", buf.String())
	}

	New(WithWriter(&buf), WithDebug(true)).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug record missing: %q", buf.String())
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithJSON(true), WithPretty(true))
	l.With("component", "store").Info("structured", "count", 42)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}
	if parsed["msg"] != "structured" {
		t.Errorf("msg = %v, want structured", parsed["msg"])
	}
	if parsed["component"] != "store" {
		t.Errorf("component = %v, want store", parsed["component"])
	}
	if parsed["count"] != float64(42) {
		t.Errorf("count = %v, want 42", parsed["count"])
	}
}

func TestPrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	New(WithWriter(&buf), WithPretty(true)).Info("pretty output")

	if !strings.Contains(buf.String(), "pretty output") {
		t.Errorf("output %q missing message", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	if l.Handler().Enabled(context.Background(), slog.LevelError) {
		t.Error("Nop handler reports enabled")
	}
	l.With("k", "v").WithGroup("g").Info("discarded")
}
