package dedisperse_test

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/dedisperse"
)

const (
	sampleRate = 400e3
	channels   = 4
	length     = 256
)

var centers = [2]float64{50e6, 70e6}

func pulse(at int) *psrpipe.Spectra {
	s := psrpipe.NewSpectra(psrpipe.NumStreams, channels, length)
	for i := range s.Data {
		for c := range s.Data[i] {
			s.Data[i][c][at] = 1
		}
	}
	return s
}

func TestCoherentSampleSize(t *testing.T) {
	assert.Equal(t, 1, dedisperse.CoherentSampleSize(50e6, 1e5, 0))
	prev := 0
	for _, dm := range []float64{0.01, 0.1, 1, 10, 100} {
		n := dedisperse.CoherentSampleSize(50e6, 1e5, dm)
		assert.Equal(t, 0, n&(n-1), "power of two")
		assert.GreaterOrEqual(t, n, prev)
		prev = n
	}
	// The intra-channel delay at DM 1 is about 6.6 ms, or 664 spectra.
	assert.Equal(t, 1024, dedisperse.CoherentSampleSize(50e6, 1e5, 1))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, dedisperse.Check(0, 19.6e6, [2]float64{40e6, 70e6}, 512, 4096))
	assert.NoError(t, dedisperse.Check(10, 19.6e6, [2]float64{60e6, 70e6}, 4096, 4096))
	err := dedisperse.Check(1000, 19.6e6, [2]float64{60e6, 70e6}, 64, 4096)
	assert.ErrorIs(t, err, psrpipe.ErrConfig)
}

func TestZeroDM(t *testing.T) {
	k := dedisperse.New(0, sampleRate, centers, channels)
	cur := pulse(10)
	out, err := k.Dedisperse(cur, nil, pulse(0), nil)
	require.NoError(t, err)
	assert.Equal(t, cur.Data, out.Data)
	assert.NotSame(t, cur, out)
}

func TestRoundTrip(t *testing.T) {
	const dm = 0.02
	zero := psrpipe.NewSpectra(psrpipe.NumStreams, channels, length)
	cur := pulse(length / 2)

	dispersed, err := dedisperse.New(dm, sampleRate, centers, channels).Dedisperse(cur, zero, zero, nil)
	require.NoError(t, err)
	// The pulse is smeared at the lowest channel.
	assert.Less(t, cmplx.Abs(complex128(dispersed.Data[0][0][length/2])), 0.9)

	restored, err := dedisperse.New(-dm, sampleRate, centers, channels).Dedisperse(dispersed, nil, zero, nil)
	require.NoError(t, err)
	for i := range restored.Data {
		for c := range restored.Data[i] {
			for j, v := range restored.Data[i][c] {
				want := 0.0
				if j == length/2 {
					want = 1
				}
				require.InDelta(t, want, cmplx.Abs(complex128(v)), 0.05, "stream %d channel %d spectrum %d", i, c, j)
			}
		}
	}
}

func TestShapeErrors(t *testing.T) {
	k := dedisperse.New(1, sampleRate, centers, channels)
	cur := pulse(0)
	_, err := k.Dedisperse(cur, nil, nil, nil)
	assert.Error(t, err)
	_, err = k.Dedisperse(cur, psrpipe.NewSpectra(psrpipe.NumStreams, channels, 3), pulse(0), nil)
	assert.Error(t, err)
	_, err = k.Dedisperse(psrpipe.NewSpectra(psrpipe.NumStreams, 8, 2), nil, psrpipe.NewSpectra(psrpipe.NumStreams, 8, 2), nil)
	assert.Error(t, err)
}

func TestRotate(t *testing.T) {
	r := dedisperse.NewRotator(sampleRate, centers, channels)
	s := pulse(3)
	// Channel 2 of tuning 1 sits at the center frequency.
	delay := 1 / (4 * centers[0])
	r.Rotate(s, delay)
	assert.InDelta(t, 0, real(s.Data[0][2][3]), 1e-6)
	assert.InDelta(t, -1, imag(s.Data[0][2][3]), 1e-6)

	r.Rotate(s, -delay)
	for i := range s.Data {
		for c := range s.Data[i] {
			assert.InDelta(t, 1, real(s.Data[i][c][3]), 1e-5)
			assert.InDelta(t, 0, imag(s.Data[i][c][3]), 1e-5)
		}
	}
}
