package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{" WARN ", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerWithWriter(t *testing.T) {
	t.Setenv("TIMERFIX_LOG_LEVEL", "warn")
	t.Setenv("TIMERFIX_LOG_PREFIX", "")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	defer lg.Close()

	lg.Info("vars are act=12 insta=8 counter=11 type=7")
	lg.Warn("patch category needs a growing rewrite, skipping", "category", "SPELLS")

	out := buf.String()
	if strings.Contains(out, "vars are") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "timerfix") || !strings.Contains(out, "category=SPELLS") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestIsDebug(t *testing.T) {
	t.Setenv("TIMERFIX_LOG_LEVEL", "debug")
	if !IsDebug() {
		t.Error("IsDebug = false")
	}
	t.Setenv("TIMERFIX_LOG_LEVEL", "info")
	if IsDebug() {
		t.Error("IsDebug = true")
	}
}
