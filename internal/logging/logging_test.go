package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_Levels(t *testing.T) {
	prod, err := NewLogger(Params{})
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zap.DebugLevel))

	dev, err := NewLogger(Params{Development: true})
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zap.DebugLevel))
}

func TestNewLogger_WritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice-bridge.log")

	logger, err := NewLogger(Params{LogFile: path})
	require.NoError(t, err)

	logger.Info("Connected to game server", zap.String("remoteAddr", "127.0.0.1:25555"))
	logger.Debug("not at production level")
	_ = logger.Sync()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "Connected to game server")
	assert.Contains(t, string(contents), "127.0.0.1:25555")
	assert.NotContains(t, string(contents), "not at production level")
}
