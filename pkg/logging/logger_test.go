package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"WARNING", WarnLevel},
		{" error ", ErrorLevel},
		{"invalid", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}

	if ValidLevel("verbose") {
		t.Error("ValidLevel(verbose) should be false")
	}
	if !ValidLevel("Warn") {
		t.Error("ValidLevel(Warn) should be true")
	}
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("node not found", Node("Phase Router"), Edit("remove_node"))
	logger.Error("write failed", Error(errors.New("disk full")))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Level != "WARN" || entries[0].Message != "node not found" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[0].Fields["node"] != "Phase Router" || entries[0].Fields["edit"] != "remove_node" {
		t.Errorf("fields not recorded: %+v", entries[0].Fields)
	}
	if entries[1].Fields["error"] != "disk full" {
		t.Errorf("error field = %v", entries[1].Fields["error"])
	}
}

func TestJSONLogger_NoFieldsOmitted(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLogger(&buf, DebugLevel).Info("plain")

	if strings.Contains(buf.String(), `"fields"`) {
		t.Errorf("fields key should be omitted: %s", buf.String())
	}
}

func TestJSONLogger_WithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	parent := NewJSONLogger(&buf, InfoLevel)
	child := parent.With(Component("patch"), Step(3))

	parent.SetLevel(ErrorLevel)
	child.Info("suppressed")
	child.Error("kept", Source("A"), Target("B"))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	f := entries[0].Fields
	if f["component"] != "patch" || f["step"] != float64(3) || f["source"] != "A" || f["target"] != "B" {
		t.Errorf("unexpected fields %+v", f)
	}
	if child.GetLevel() != ErrorLevel {
		t.Errorf("child level = %v, want ERROR", child.GetLevel())
	}
}

func TestTimer(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	timer := StartTimer(logger, "apply finished", Path("wf.json"))
	time.Sleep(time.Millisecond)
	timer.Stop(Count(4))
	StartTimer(logger, "apply failed").StopError(errors.New("boom"))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Fields["path"] != "wf.json" || entries[0].Fields["count"] != float64(4) {
		t.Errorf("unexpected fields %+v", entries[0].Fields)
	}
	if _, ok := entries[0].Fields["latency"]; !ok {
		t.Error("latency missing")
	}
	if entries[1].Level != "ERROR" || entries[1].Fields["error"] != "boom" {
		t.Errorf("unexpected error entry %+v", entries[1])
	}
}

func TestNopLogger(t *testing.T) {
	var l Logger = NewNopLogger()
	l.Info("ignored")
	if l.With(Node("x")) == nil {
		t.Error("With should return a logger")
	}
	if l.GetLevel() != InfoLevel {
		t.Error("NopLogger level should be INFO")
	}
}

func TestStderrLoggerReadsLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	if got := NewStderrLogger().GetLevel(); got != WarnLevel {
		t.Errorf("level = %v, want %v", got, WarnLevel)
	}

	t.Setenv("LOG_LEVEL", "")
	if got := NewStderrLogger().GetLevel(); got != InfoLevel {
		t.Errorf("level = %v, want %v", got, InfoLevel)
	}
}
