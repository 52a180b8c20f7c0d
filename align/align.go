// Package align computes the offsets which bring simultaneously recorded
// inputs to a common start time.
package align

import (
	"fmt"

	"github.com/pipelined/psrpipe"
)

// Config defines the time bases used by the aligner.
type Config struct {
	// ClockRate is the tick rate of start times in Hz.
	ClockRate float64
	// FrameSamples is the number of samples in one frame.
	FrameSamples int
	// SubintSamples is the number of samples per stream in one sub-integration.
	SubintSamples int
	// SubSample keeps the residual tick offset for a phase rotation.
	SubSample bool
	// MaxSkew is the largest accepted start time difference in ticks.
	// Zero means two seconds.
	MaxSkew int64
}

// Input is a stream to align.
type Input struct {
	Name       string
	StartTick  int64
	SampleRate float64
	FrameSets  int64
}

// Offset is the alignment of one input.
type Offset struct {
	// Frame is the number of whole frames to skip.
	Frame int64
	// Sample is the shift within a frame, less than the frame size.
	Sample int
	// Tick is the residual delay in clock ticks. It is zero unless
	// sub-sample correction is enabled.
	Tick int64
	// Subints is the number of whole sub-integrations left after the offset.
	Subints int64
}

// Plan is the alignment of a set of inputs.
type Plan struct {
	// Latest is the start tick all inputs are aligned to.
	Latest      int64
	FrameTicks  int64
	SampleTicks int64
	Offsets     []Offset
	// Subints is the minimum of usable sub-integrations across inputs.
	Subints   int64
	SubSample bool

	starts []int64
}

// New computes the alignment plan for inputs.
func New(cfg Config, inputs []Input) (*Plan, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", psrpipe.ErrAlignment)
	}
	if cfg.ClockRate <= 0 {
		cfg.ClockRate = psrpipe.ClockRate
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = psrpipe.FrameSamples
	}
	if cfg.SubintSamples <= 0 {
		cfg.SubintSamples = cfg.FrameSamples
	}
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = int64(2 * cfg.ClockRate)
	}

	rate := inputs[0].SampleRate
	latest := inputs[0].StartTick
	for _, in := range inputs {
		if in.SampleRate <= 0 {
			return nil, fmt.Errorf("%w: %s: invalid sample rate %v", psrpipe.ErrConfig, in.Name, in.SampleRate)
		}
		if in.SampleRate != rate {
			return nil, fmt.Errorf("%w: %w: sample rate change detected: %s has %v Hz, expected %v Hz",
				psrpipe.ErrAlignment, psrpipe.ErrConfig, in.Name, in.SampleRate, rate)
		}
		if in.StartTick > latest {
			latest = in.StartTick
		}
	}

	p := Plan{
		Latest:      latest,
		SampleTicks: int64(cfg.ClockRate / rate),
		FrameTicks:  int64(cfg.ClockRate / rate * float64(cfg.FrameSamples)),
		Offsets:     make([]Offset, len(inputs)),
		SubSample:   cfg.SubSample,
		starts:      make([]int64, len(inputs)),
	}
	if p.SampleTicks <= 0 {
		return nil, fmt.Errorf("%w: sample rate %v exceeds clock rate", psrpipe.ErrConfig, rate)
	}
	framesPerSubint := int64(cfg.SubintSamples / cfg.FrameSamples)
	if framesPerSubint < 1 {
		framesPerSubint = 1
	}
	for i, in := range inputs {
		diff := latest - in.StartTick
		if diff > cfg.MaxSkew {
			return nil, fmt.Errorf("%w: %s starts %d ticks before the latest input, limit is %d",
				psrpipe.ErrAlignment, in.Name, diff, cfg.MaxSkew)
		}
		o := Offset{Frame: diff / p.FrameTicks}
		diff -= o.Frame * p.FrameTicks
		o.Sample = int(diff / p.SampleTicks)
		if o.Sample == cfg.FrameSamples {
			o.Frame++
			o.Sample = 0
		}
		if cfg.SubSample {
			o.Tick = latest - (in.StartTick + o.Frame*p.FrameTicks + int64(o.Sample)*p.SampleTicks)
		}
		if o.Frame >= in.FrameSets {
			return nil, fmt.Errorf("%w: %s: offset of %d frames exceeds the %d frames available",
				psrpipe.ErrAlignment, in.Name, o.Frame, in.FrameSets)
		}
		o.Subints = (in.FrameSets - o.Frame - 1) / framesPerSubint
		if i == 0 || o.Subints < p.Subints {
			p.Subints = o.Subints
		}
		p.Offsets[i] = o
		p.starts[i] = in.StartTick
	}
	return &p, nil
}

// Aligned returns the start tick of input i once its offset is applied.
func (p *Plan) Aligned(i int) int64 {
	o := p.Offsets[i]
	return p.starts[i] + o.Frame*p.FrameTicks + int64(o.Sample)*p.SampleTicks + o.Tick
}

// Residual returns the ticks left between the aligned start of input i
// and the common start.
func (p *Plan) Residual(i int) int64 {
	return p.Latest - p.Aligned(i)
}
