// Package config holds the run configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/coords"
	"github.com/pipelined/psrpipe/internal/queue"
	"github.com/pipelined/psrpipe/polarization"
	"github.com/pipelined/psrpipe/rfi"
)

// Config defines a conversion run.
type Config struct {
	// Output is the output basename. Empty means derived from the epoch
	// and the source name.
	Output string `yaml:"output"`
	// Channels is the FFT length.
	Channels int `yaml:"nchan"`
	// Subint is the number of spectra per sub-integration row.
	Subint int     `yaml:"nsblk"`
	DM     float64 `yaml:"dm"`

	SKFlagging bool    `yaml:"sk_flagging"`
	SKSigma    float64 `yaml:"sk_sigma"`

	SumPols     bool `yaml:"sum_pols"`
	Stokes      bool `yaml:"stokes"`
	Circularize bool `yaml:"circularize"`

	Source string `yaml:"source"`
	RA     string `yaml:"ra"`
	Dec    string `yaml:"dec"`

	Bits      int  `yaml:"bits"`
	SubSample bool `yaml:"subsample_correction"`

	QueueDepth  int           `yaml:"queue_depth"`
	Poll        time.Duration `yaml:"poll"`
	RowsPerFile int           `yaml:"rows_per_file"`

	// Catalog is an optional SQLite database recording output files.
	Catalog string `yaml:"catalog"`

	Observer  string `yaml:"observer"`
	Telescope string `yaml:"telescope"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Channels:    512,
		Subint:      4096,
		SKFlagging:  true,
		SKSigma:     rfi.DefaultSigma,
		SumPols:     true,
		Source:      "None",
		RA:          coords.DefaultRA,
		Dec:         coords.DefaultDec,
		Bits:        8,
		QueueDepth:  3,
		Poll:        queue.DefaultPoll,
		RowsPerFile: 32768,
		Observer:    "drx2psrfits",
		Telescope:   "LWA",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %s: %v", psrpipe.ErrConfig, path, err)
	}
	return c, nil
}

// ChunkSamples returns the number of samples per stream in one chunk.
func (c *Config) ChunkSamples() int {
	return c.Channels * c.Subint
}

// Validate normalizes the configuration and resolves the polarization
// mode. Stokes conversion takes precedence over circularization and
// either disables summing.
func (c *Config) Validate() (polarization.Mode, error) {
	if c.Stokes {
		c.Circularize = false
	}
	if c.Stokes || c.Circularize {
		c.SumPols = false
	}
	if c.QueueDepth < 1 {
		c.QueueDepth = 1
	}
	if c.Poll <= 0 {
		c.Poll = queue.DefaultPoll
	}
	if c.SKSigma <= 0 {
		c.SKSigma = rfi.DefaultSigma
	}
	if c.RA == "" {
		c.RA = coords.DefaultRA
	}
	if c.Dec == "" {
		c.Dec = coords.DefaultDec
	}
	switch {
	case c.Bits != 4 && c.Bits != 8:
		return 0, fmt.Errorf("%w: data bits must be 4 or 8, got %d", psrpipe.ErrConfig, c.Bits)
	case c.Channels < 4 || c.Channels%2 != 0:
		return 0, fmt.Errorf("%w: channel count must be even and at least 4, got %d", psrpipe.ErrConfig, c.Channels)
	case c.Subint < 1:
		return 0, fmt.Errorf("%w: invalid sub-integration block size %d", psrpipe.ErrConfig, c.Subint)
	case c.Bits == 4 && c.Subint%2 != 0:
		return 0, fmt.Errorf("%w: 4-bit data needs an even sub-integration block size, got %d", psrpipe.ErrConfig, c.Subint)
	case c.ChunkSamples()%psrpipe.FrameSamples != 0:
		return 0, fmt.Errorf("%w: nchan*nsblk = %d is not a multiple of %d samples", psrpipe.ErrConfig, c.ChunkSamples(), psrpipe.FrameSamples)
	case c.RowsPerFile < 1:
		return 0, fmt.Errorf("%w: invalid rows per file %d", psrpipe.ErrConfig, c.RowsPerFile)
	case c.DM < 0:
		return 0, fmt.Errorf("%w: negative dispersion measure %v", psrpipe.ErrConfig, c.DM)
	}
	if _, err := coords.ParseRA(c.RA); err != nil {
		return 0, fmt.Errorf("%w: %v", psrpipe.ErrConfig, err)
	}
	if _, err := coords.ParseDec(c.Dec); err != nil {
		return 0, fmt.Errorf("%w: %v", psrpipe.ErrConfig, err)
	}
	return polarization.Select(c.SumPols, c.Stokes, c.Circularize)
}
