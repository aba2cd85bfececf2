package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		env, level string
		debug      bool
	}{
		{env: "development", debug: true},
		{env: "production", debug: false},
		{env: "production", level: "debug", debug: true},
		{env: "development", level: "warn", debug: false},
		{env: "production", level: "nonsense", debug: false},
	}
	for _, tt := range tests {
		log, err := New(tt.env, tt.level)
		require.NoError(t, err)
		assert.Equal(t, tt.debug, log.Core().Enabled(zapcore.DebugLevel), "%s/%s", tt.env, tt.level)
	}
}
