package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigureWritesToGivenWriterAtRequestedLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure("warn", &buf)
	t.Cleanup(func() { Configure("info", nil) })

	Log.Info().Msg("should be filtered out")
	Log.Warn().Msg("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered out") {
		t.Fatalf("expected info-level message to be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("expected warn-level message to appear, got %q", out)
	}
}

func TestConfigureFallsBackToInfoOnInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure("not-a-real-level", &buf)
	t.Cleanup(func() { Configure("info", nil) })

	if Log.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected an invalid level to fall back to info, got %v", Log.GetLevel())
	}
}
