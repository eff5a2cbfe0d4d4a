package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf).Component("session")
	logger.Info().Str("path", "a.txt").Msg("listed")

	out := buf.String()
	if !strings.Contains(out, "component=session") {
		t.Errorf("missing component field in %q", out)
	}
	if !strings.Contains(out, "path=a.txt") {
		t.Errorf("missing path field in %q", out)
	}
}

func TestSetOutput(t *testing.T) {
	var first, second bytes.Buffer
	logger := NewLogger(&first)
	logger.SetOutput(&second)
	logger.Infof("moved %d", 1)

	if first.Len() != 0 {
		t.Error("old writer should receive nothing after SetOutput")
	}
	if !strings.Contains(second.String(), "moved 1") {
		t.Errorf("new writer missing message: %q", second.String())
	}
	if logger.Output() != &second {
		t.Error("Output should return the new writer")
	}
}

func TestNopDiscards(t *testing.T) {
	// Must not panic.
	Nop().Component("x").Error().Msg("ignored")
}
