package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

func newCapturingLogger(level string) (*logrus.Logger, *bytes.Buffer) {
	l := New(level)
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	return l, buf
}

func TestLineFormat(t *testing.T) {
	l, buf := newCapturingLogger("debug")
	For(l, ComponentDNS).Info("listening on 127.0.0.1:53")

	got := buf.String()
	want := "[DNS] INFO listening on 127.0.0.1:53\n"
	if got != want {
		t.Errorf("log line = %q, want %q", got, want)
	}
}

func TestDefaultComponent(t *testing.T) {
	l, buf := newCapturingLogger("info")
	l.Info("no component set")

	want := "[sptth] INFO no component set\n"
	if buf.String() != want {
		t.Errorf("log line = %q, want %q", buf.String(), want)
	}
}

func TestLevelFiltering_ErrorOnlyShowsError(t *testing.T) {
	l, buf := newCapturingLogger("error")
	entry := For(l, ComponentProxy)
	entry.Debug("debug message")
	entry.Info("info message")
	entry.Error("error message")

	got := buf.String()
	if strContains(got, "debug message") || strContains(got, "info message") {
		t.Errorf("error level leaked lower-priority lines: %q", got)
	}
	if !strContains(got, "error message") {
		t.Errorf("expected error message in output, got %q", got)
	}
}

func TestLevelFiltering_InfoExcludesDebug(t *testing.T) {
	l, buf := newCapturingLogger("info")
	entry := For(l, ComponentProxy)
	entry.Debug("debug message")
	entry.Info("info message")

	got := buf.String()
	if strContains(got, "debug message") {
		t.Errorf("info level leaked a debug line: %q", got)
	}
	if !strContains(got, "info message") {
		t.Errorf("expected info message in output, got %q", got)
	}
}

func TestLevelFiltering_DebugShowsEverything(t *testing.T) {
	l, buf := newCapturingLogger("debug")
	entry := For(l, ComponentProxy)
	entry.Debug("debug message")
	entry.Info("info message")
	entry.Error("error message")

	got := buf.String()
	for _, want := range []string{"debug message", "info message", "error message"} {
		if !strContains(got, want) {
			t.Errorf("debug level missing %q in output: %q", want, got)
		}
	}
}

func TestUnrecognizedLevelFallsBackToInfo(t *testing.T) {
	l, buf := newCapturingLogger("not-a-level")
	entry := For(l, ComponentProxy)
	entry.Debug("debug message")
	entry.Info("info message")

	got := buf.String()
	if strContains(got, "debug message") {
		t.Errorf("fallback level should exclude debug, got %q", got)
	}
	if !strContains(got, "info message") {
		t.Errorf("fallback level should include info, got %q", got)
	}
}

func strContains(haystack, needle string) bool {
	return bytes.Contains([]byte(haystack), []byte(needle))
}
