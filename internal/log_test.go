package internal

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	fn()
	return buf.String()
}

// TestLogger_LevelGating verifies messages below the configured level are
// suppressed.
func TestLogger_LevelGating(t *testing.T) {
	logger := NewLogger(LogLevelWarn)

	out := captureLog(t, func() {
		logger.Info("routine progress")
		logger.Warn("rotation diverged")
	})

	if strings.Contains(out, "routine progress") {
		t.Errorf("Expected info to be suppressed at warn level, got %q", out)
	}
	if !strings.Contains(out, "[WARN] rotation diverged") {
		t.Errorf("Expected the warning to be logged, got %q", out)
	}
}

// TestLogger_ComponentTag verifies For prefixes lines with the component.
func TestLogger_ComponentTag(t *testing.T) {
	logger := NewLogger(LogLevelInfo).For("Bootstrap")

	out := captureLog(t, func() {
		logger.Info("pair %s finished", "format1_orderA~format1_orderB")
	})

	if !strings.Contains(out, "[INFO] [Bootstrap] pair format1_orderA~format1_orderB finished") {
		t.Errorf("Expected a component-tagged line, got %q", out)
	}
}

// TestNewDefaultLogger_EnvLevel verifies LOG_LEVEL controls verbosity.
func TestNewDefaultLogger_EnvLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	logger := NewDefaultLogger()

	out := captureLog(t, func() {
		logger.Debug("resample indices drawn")
	})

	if !strings.Contains(out, "[DEBUG] resample indices drawn") {
		t.Errorf("Expected debug output at DEBUG level, got %q", out)
	}
}
