package align_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/align"
)

const sampleRate = 19.6e6 // 10 ticks per sample

func TestHalfChunkOffset(t *testing.T) {
	cfg := align.Config{
		FrameSamples:  4096,
		SubintSamples: 4096 * 4,
	}
	chunkTicks := int64(4096 * 10)
	inputs := []align.Input{
		{Name: "early", StartTick: 1000000, SampleRate: sampleRate, FrameSets: 100},
		{Name: "late", StartTick: 1000000 + chunkTicks*3/2, SampleRate: sampleRate, FrameSets: 100},
	}
	p, err := align.New(cfg, inputs)
	require.NoError(t, err)
	assert.Equal(t, align.Offset{Frame: 1, Sample: 2048, Subints: (100 - 1 - 1) / 4}, p.Offsets[0])
	assert.Equal(t, align.Offset{Frame: 0, Sample: 0, Subints: (100 - 1) / 4}, p.Offsets[1])
	assert.Equal(t, int64((100-2)/4), p.Subints)
	assert.Equal(t, int64(0), p.Residual(0))
	assert.Equal(t, int64(0), p.Residual(1))
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		inputs []align.Input
		is     []error
	}{
		{
			name: "rate mismatch",
			inputs: []align.Input{
				{StartTick: 0, SampleRate: sampleRate, FrameSets: 10},
				{StartTick: 0, SampleRate: sampleRate / 2, FrameSets: 10},
			},
			is: []error{psrpipe.ErrAlignment, psrpipe.ErrConfig},
		},
		{
			name: "gap exceeds file",
			inputs: []align.Input{
				{StartTick: 0, SampleRate: sampleRate, FrameSets: 2},
				{StartTick: 4096 * 10 * 5, SampleRate: sampleRate, FrameSets: 10},
			},
			is: []error{psrpipe.ErrAlignment},
		},
		{
			name: "skew",
			inputs: []align.Input{
				{StartTick: 0, SampleRate: sampleRate, FrameSets: 1 << 30},
				{StartTick: 3 * int64(psrpipe.ClockRate), SampleRate: sampleRate, FrameSets: 1 << 30},
			},
			is: []error{psrpipe.ErrAlignment},
		},
		{
			name:   "empty",
			inputs: nil,
			is:     []error{psrpipe.ErrAlignment},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := align.New(align.Config{}, test.inputs)
			require.Error(t, err)
			for _, is := range test.is {
				assert.ErrorIs(t, err, is)
			}
		})
	}
}

func TestAlignmentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		decimation := rapid.SampledFrom([]int64{10, 20, 49, 98, 196}).Draw(t, "decimation")
		rate := psrpipe.ClockRate / float64(decimation)
		subSample := rapid.Bool().Draw(t, "subSample")
		base := rapid.Int64Range(0, 1<<40).Draw(t, "base")
		n := rapid.IntRange(1, 6).Draw(t, "inputs")
		inputs := make([]align.Input, n)
		for i := range inputs {
			inputs[i] = align.Input{
				StartTick:  base + rapid.Int64Range(0, int64(psrpipe.ClockRate)).Draw(t, "skew"),
				SampleRate: rate,
				FrameSets:  1 << 20,
			}
		}
		p, err := align.New(align.Config{SubSample: subSample}, inputs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lo, hi := p.Aligned(0), p.Aligned(0)
		for i, o := range p.Offsets {
			if o.Sample < 0 || o.Sample >= psrpipe.FrameSamples {
				t.Fatalf("sample offset %d out of range", o.Sample)
			}
			a := p.Aligned(i)
			if a < lo {
				lo = a
			}
			if a > hi {
				hi = a
			}
			if !subSample && o.Tick != 0 {
				t.Fatalf("tick offset %d without sub-sample correction", o.Tick)
			}
		}
		if subSample {
			if hi-lo >= 1 {
				t.Fatalf("aligned starts differ by %d ticks", hi-lo)
			}
		} else if hi-lo >= p.SampleTicks {
			t.Fatalf("aligned starts differ by %d ticks, more than a sample", hi-lo)
		}
	})
}
