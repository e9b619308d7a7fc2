package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		margin time.Duration
		err    string
	}{
		{"missing margin", 0, "missing safety margin"},
		{"negative margin", -time.Minute, "missing safety margin"},
		{"sub-second margin", 500 * time.Millisecond, "at least 1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{SafetyMargin: tt.margin}
			require.ErrorContains(t, cfg.validate(), tt.err)
		})
	}

	t.Run("margin in seconds", func(t *testing.T) {
		cfg := Config{SafetyMargin: time.Second}
		require.NoError(t, cfg.validate())
		require.Equal(t, int64(1), cfg.marginSeconds())

		cfg.SafetyMargin = 1500 * time.Millisecond
		require.Equal(t, int64(2), cfg.marginSeconds())

		cfg.SafetyMargin = 10 * time.Minute
		require.Equal(t, int64(600), cfg.marginSeconds())
	})
}
