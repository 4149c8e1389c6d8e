package logging

import (
	"fmt"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("hello")
	if got != "hello" {
		t.Fatalf("custom logger was not invoked, got %q", got)
	}

	SetLogger(nil)
	Logf("should not panic")
}

func TestLoggerLevelFiltering(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	l := New("camera.front", Warn)
	l.Debugf("ignored")
	l.Infof("ignored too")
	l.Warnf("seen")
	l.Errorf("also seen")

	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines past the Warn threshold, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "camera.front") || !strings.Contains(lines[0], "WARN") {
		t.Errorf("unexpected log line: %q", lines[0])
	}
}

func TestNamedFallsBackToParentLevel(t *testing.T) {
	parent := New("camera.front", Debug)

	// Unset sub-level falls back to the parent's level.
	child := parent.Named("motion", "")
	if child.Level() != Debug {
		t.Errorf("expected child to inherit Debug, got %v", child.Level())
	}

	// A valid sub-level override wins.
	override := parent.Named("object", "error")
	if override.Level() != Error {
		t.Errorf("expected override to Error, got %v", override.Level())
	}
	if override.name != "camera.front.object" {
		t.Errorf("unexpected child name: %q", override.name)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": Debug, "INFO": Info, "warning": Warn, "ERROR": Error}
	for s, want := range cases {
		got, ok := ParseLevel(s)
		if !ok || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, true", s, got, ok, want)
		}
	}
	if _, ok := ParseLevel("nonsense"); ok {
		t.Error("expected ParseLevel to reject an unrecognized string")
	}
}
