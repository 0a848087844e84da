package infra

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		env, level string
		want       zerolog.Level
	}{
		{"production", "", zerolog.InfoLevel},
		{"development", "", zerolog.DebugLevel},
		{"production", "warn", zerolog.WarnLevel},
		{"development", "ERROR", zerolog.ErrorLevel},
		{"production", "nonsense", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := NewLogger(tc.env, tc.level).GetLevel(); got != tc.want {
			t.Fatalf("NewLogger(%q, %q) level = %s, want %s", tc.env, tc.level, got, tc.want)
		}
	}
}
