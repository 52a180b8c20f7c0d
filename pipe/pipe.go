// Package pipe converts a set of simultaneously recorded DRX files into
// PSRFITS search-mode files.
//
// Inputs are aligned once, then processed one after another. Every input
// gets its own processing context: a reader goroutine which fills a bounded
// queue with chunks and a consumer which channelizes, dedisperses, reduces,
// quantizes and writes them.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/align"
	"github.com/pipelined/psrpipe/config"
	"github.com/pipelined/psrpipe/coords"
	"github.com/pipelined/psrpipe/dedisperse"
	"github.com/pipelined/psrpipe/drx"
	"github.com/pipelined/psrpipe/log"
	"github.com/pipelined/psrpipe/polarization"
	"github.com/pipelined/psrpipe/psrfits"
)

// Opener opens an input stream.
type Opener func(path string) (psrpipe.Source, error)

// Recorder stores completed output files.
type Recorder interface {
	Record(ctx context.Context, run string, fi psrfits.FileInfo) error
}

// Pipe converts input files with one configuration.
type Pipe struct {
	id   string
	cfg  config.Config
	mode polarization.Mode
	ra   float64
	dec  float64

	open        Opener
	channelizer psrpipe.Channelizer
	dedisperser psrpipe.Dedisperser
	masker      psrpipe.Masker
	recorder    Recorder
	log         logrus.FieldLogger

	files []psrfits.FileInfo
}

// Option provides a way to set parameters to pipe.
type Option func(p *Pipe) error

// ErrNoInputs is returned when Run is called without input files.
var ErrNoInputs = errors.New("no input files")

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// New validates the configuration and returns a pipe.
func New(cfg config.Config, options ...Option) (*Pipe, error) {
	mode, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	ra, err := coords.ParseRA(cfg.RA)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", psrpipe.ErrConfig, err)
	}
	dec, err := coords.ParseDec(cfg.Dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", psrpipe.ErrConfig, err)
	}
	p := &Pipe{
		id:   newUID(),
		cfg:  cfg,
		mode: mode,
		ra:   ra.Degrees(),
		dec:  dec.Degrees(),
		open: func(path string) (psrpipe.Source, error) {
			return drx.Open(path)
		},
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	if p.log == nil {
		p.log = log.GetLogger()
	}
	p.log = p.log.WithField("run", p.id)
	return p, nil
}

// WithOpener sets the function used to open inputs.
func WithOpener(open Opener) Option {
	return func(p *Pipe) error {
		p.open = open
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipe) error {
		p.log = l
		return nil
	}
}

// WithChannelizer replaces the FFT channelizer.
func WithChannelizer(c psrpipe.Channelizer) Option {
	return func(p *Pipe) error {
		p.channelizer = c
		return nil
	}
}

// WithDedisperser replaces the coherent dedispersion kernel built for
// every input.
func WithDedisperser(d psrpipe.Dedisperser) Option {
	return func(p *Pipe) error {
		p.dedisperser = d
		return nil
	}
}

// WithMasker replaces the RFI detector selected by the configuration.
func WithMasker(m psrpipe.Masker) Option {
	return func(p *Pipe) error {
		p.masker = m
		return nil
	}
}

// WithRecorder records every completed output file.
func WithRecorder(r Recorder) Option {
	return func(p *Pipe) error {
		p.recorder = r
		return nil
	}
}

// ID returns the run id.
func (p *Pipe) ID() string {
	return p.id
}

// Mode returns the resolved polarization mode.
func (p *Pipe) Mode() polarization.Mode {
	return p.mode
}

// Files returns the output files completed by Run.
func (p *Pipe) Files() []psrfits.FileInfo {
	return p.files
}

// Plan opens every input to read its description and computes the
// alignment.
func (p *Pipe) Plan(paths []string) (*align.Plan, []psrpipe.Info, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("%w: %w", psrpipe.ErrConfig, ErrNoInputs)
	}
	infos := make([]psrpipe.Info, 0, len(paths))
	inputs := make([]align.Input, 0, len(paths))
	for _, path := range paths {
		src, err := p.open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", path, err)
		}
		info := src.Info()
		if err := src.Close(); err != nil {
			return nil, nil, fmt.Errorf("close %s: %w", path, err)
		}
		if info.Name == "" {
			info.Name = path
		}
		infos = append(infos, info)
		inputs = append(inputs, align.Input{
			Name:       path,
			StartTick:  info.StartTick,
			SampleRate: info.SampleRate,
			FrameSets:  info.FrameSets,
		})
	}
	plan, err := align.New(align.Config{
		ClockRate:     psrpipe.ClockRate,
		FrameSamples:  psrpipe.FrameSamples,
		SubintSamples: p.cfg.ChunkSamples(),
		SubSample:     p.cfg.SubSample,
	}, inputs)
	if err != nil {
		return nil, nil, err
	}
	return plan, infos, nil
}

// Run converts all inputs. Inputs are processed sequentially and the run
// stops at the first failed input. Configuration problems are reported
// before any output file is created.
func (p *Pipe) Run(ctx context.Context, paths []string) error {
	plan, infos, err := p.Plan(paths)
	if err != nil {
		return err
	}
	var minResidual, maxResidual int64
	for i, info := range infos {
		if p.dedisperser == nil {
			if err := dedisperse.Check(p.cfg.DM, info.SampleRate, info.Freq, p.cfg.Channels, p.cfg.Subint); err != nil {
				return fmt.Errorf("%s: %w", paths[i], err)
			}
		}
		r := plan.Residual(i)
		if i == 0 || r < minResidual {
			minResidual = r
		}
		if i == 0 || r > maxResidual {
			maxResidual = r
		}
		p.log.WithFields(logrus.Fields{
			"file":     paths[i],
			"beam":     info.Beam,
			"frame":    plan.Offsets[i].Frame,
			"sample":   plan.Offsets[i].Sample,
			"tick":     plan.Offsets[i].Tick,
			"residual": r,
			"subints":  plan.Offsets[i].Subints,
		}).Info("alignment")
	}
	p.log.WithFields(logrus.Fields{
		"min_residual": minResidual,
		"max_residual": maxResidual,
	}).Info("alignment residuals in ticks")
	if plan.Subints < 2 {
		p.log.Warnf("only %d usable sub-integrations, no rows will be written", plan.Subints)
	}
	base := p.cfg.Output
	if base == "" {
		base = p.defaultBasename(p.epoch(infos[0], plan.Offsets[0]))
	}

	p.files = p.files[:0]
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := p.newFile(path, base, infos[i], plan.Offsets[i], plan.Subints)
		err := f.process(ctx)
		p.files = append(p.files, f.files...)
		if err != nil {
			return err
		}
	}
	return nil
}

// epoch returns the time of the first written spectrum of an input. The
// first chunk is dedispersed against an empty previous block and becomes
// row 0, so this is the aligned start itself.
func (p *Pipe) epoch(info psrpipe.Info, o align.Offset) time.Time {
	tps := info.TicksPerSample()
	ticks := info.StartTick + o.Frame*psrpipe.FrameSamples*tps + int64(o.Sample)*tps + o.Tick
	clock := int64(psrpipe.ClockRate)
	return time.Unix(ticks/clock, (ticks%clock)*int64(time.Second)/clock).UTC()
}

// defaultBasename derives the output basename from the MJD day and the
// source name.
func (p *Pipe) defaultBasename(t time.Time) string {
	mjd := psrfits.Header{Start: t}.MJD()
	return fmt.Sprintf("drx_%05d_%s", int(mjd), strings.ReplaceAll(p.cfg.Source, " ", ""))
}

// header returns the output header template of one tuning.
func (p *Pipe) header(base string, info psrpipe.Info, tuning int, start time.Time) psrfits.Header {
	return psrfits.Header{
		Basename:    fmt.Sprintf("%s_b%dt%d", base, info.Beam, tuning+1),
		Beam:        info.Beam,
		Tuning:      tuning + 1,
		Source:      p.cfg.Source,
		RA:          p.cfg.RA,
		Dec:         p.cfg.Dec,
		RADeg:       p.ra,
		DecDeg:      p.dec,
		CenterFreq:  info.Freq[tuning] / 1e6,
		Bandwidth:   info.SampleRate / 1e6,
		Channels:    p.cfg.Channels,
		SampleTime:  float64(p.cfg.Channels) / info.SampleRate,
		NumSpectra:  p.cfg.Subint,
		Bits:        p.cfg.Bits,
		Pols:        p.mode.NumPols(),
		PolOrder:    p.mode.Label(),
		PolType:     p.mode.PolType(),
		Start:       start,
		RowsPerFile: p.cfg.RowsPerFile,
		Observer:    p.cfg.Observer,
		Telescope:   p.cfg.Telescope,
		Frontend:    "LWA",
		Backend:     "DRX",
		Project:     "Pulsar",
	}
}
