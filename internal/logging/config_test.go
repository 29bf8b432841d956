package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("%q: want %v, got %v (ok=%v)", raw, want, got, ok)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
	if _, ok := ParseLevel(""); ok {
		t.Fatalf("expected empty level to be rejected")
	}
}

func TestSetLevelRespectsEnv(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	t.Setenv(EnvLogLevel, "")
	if !SetLevel("error") || zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Fatalf("expected configured level to apply")
	}

	t.Setenv(EnvLogLevel, "debug")
	if SetLevel("warn") || zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Fatalf("expected env level to win over config")
	}
}

func TestApplyBypassWritesJSON(t *testing.T) {
	prev, prevLogger := zerolog.GlobalLevel(), log.Logger
	defer func() {
		zerolog.SetGlobalLevel(prev)
		log.Logger = prevLogger
	}()

	var buf bytes.Buffer
	logger := Apply(Config{Level: zerolog.InfoLevel, Bypass: true, Output: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("tool", "adb").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, `"tool":"adb"`) || !strings.Contains(out, `"app":"devctl"`) {
		t.Fatalf("unexpected output %q", out)
	}
}
