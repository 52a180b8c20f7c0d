package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/config"
	"github.com/pipelined/psrpipe/polarization"
)

func TestDefault(t *testing.T) {
	c := config.Default()
	m, err := c.Validate()
	require.NoError(t, err)
	assert.Equal(t, polarization.Intensity, m)
	assert.Equal(t, 512*4096, c.ChunkSamples())
	assert.Equal(t, 3, c.QueueDepth)
	assert.Equal(t, 32768, c.RowsPerFile)
	assert.Equal(t, time.Millisecond, c.Poll)
}

func TestModes(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		mode   polarization.Mode
	}{
		{"no summing", func(c *config.Config) { c.SumPols = false }, polarization.Linear},
		{"circularize", func(c *config.Config) { c.Circularize = true }, polarization.Circular},
		{"stokes", func(c *config.Config) { c.Stokes = true }, polarization.Stokes},
		{"stokes over circularize", func(c *config.Config) { c.Stokes, c.Circularize = true, true }, polarization.Stokes},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := config.Default()
			test.modify(&c)
			m, err := c.Validate()
			require.NoError(t, err)
			assert.Equal(t, test.mode, m)
			assert.Equal(t, test.mode == polarization.Intensity, c.SumPols)
		})
	}
}

func TestInvalid(t *testing.T) {
	tests := map[string]func(*config.Config){
		"bits":        func(c *config.Config) { c.Bits = 2 },
		"channels":    func(c *config.Config) { c.Channels = 3 },
		"chunk size":  func(c *config.Config) { c.Channels, c.Subint = 4, 100 },
		"rows":        func(c *config.Config) { c.RowsPerFile = 0 },
		"4-bit block": func(c *config.Config) { c.Channels, c.Subint, c.Bits = 4096, 1, 4 },
		"dm":          func(c *config.Config) { c.DM = -1 },
		"ra":          func(c *config.Config) { c.RA = "25:00:00" },
		"dec":         func(c *config.Config) { c.Dec = "xx" },
	}
	for name, modify := range tests {
		c := config.Default()
		modify(&c)
		_, err := c.Validate()
		assert.ErrorIs(t, err, psrpipe.ErrConfig, name)
	}

	c := config.Default()
	c.QueueDepth = -5
	_, err := c.Validate()
	require.NoError(t, err)
	assert.Equal(t, 1, c.QueueDepth)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nchan: 1024
dm: 26.76
source: B0329+54
bits: 4
poll: 2ms
stokes: true
`), 0o644))
	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, c.Channels)
	assert.Equal(t, 4096, c.Subint)
	assert.Equal(t, 26.76, c.DM)
	assert.Equal(t, 4, c.Bits)
	assert.Equal(t, 2*time.Millisecond, c.Poll)
	m, err := c.Validate()
	require.NoError(t, err)
	assert.Equal(t, polarization.Stokes, m)

	require.NoError(t, os.WriteFile(path, []byte("nchan: [1"), 0o644))
	_, err = config.Load(path)
	assert.ErrorIs(t, err, psrpipe.ErrConfig)
}
