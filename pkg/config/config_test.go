package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1024, cfg.PacketSize)
	assert.Equal(t, 16, cfg.Window)
	assert.Equal(t, 0, cfg.RemotePacketSize)
	assert.Equal(t, 100, cfg.MaxErrors)
	assert.Equal(t, 10, cfg.ErrorDecay)
}

func TestLoadBytesOverridesSubset(t *testing.T) {
	cfg, err := LoadBytes([]byte(`
[protocol]
packet-size = 512
window = 8
`))
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.PacketSize)
	assert.Equal(t, 8, cfg.Window)
	// Untouched keys keep their defaults.
	assert.Equal(t, 6, cfg.Retries)
	assert.Equal(t, 100, cfg.MaxErrors)
}
