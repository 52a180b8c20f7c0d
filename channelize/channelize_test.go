package channelize_test

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/channelize"
)

func tone(n, channels, bin int) []complex64 {
	s := make([]complex64, n)
	for i := range s {
		s[i] = complex64(cmplx.Exp(complex(0, 2*math.Pi*float64(bin*(i%channels))/float64(channels))))
	}
	return s
}

func TestChannelize(t *testing.T) {
	const channels, length = 8, 3
	c := &psrpipe.Chunk{Samples: [][]complex64{
		tone(channels*length, channels, 1),
		tone(channels*length, channels, -2),
	}}
	f := channelize.New()
	out, err := f.Channelize(c, channels, nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Streams())
	assert.Equal(t, channels, out.Channels)
	assert.Equal(t, length, out.Length)

	peaks := []int{channels/2 + 1, channels/2 - 2}
	for s, peak := range peaks {
		for ch := 0; ch < channels; ch++ {
			for j := 0; j < length; j++ {
				want := 0.0
				if ch == peak {
					want = channels
				}
				assert.InDelta(t, want, cmplx.Abs(complex128(out.Data[s][ch][j])), 1e-4, "stream %d channel %d", s, ch)
			}
		}
	}

	again, err := f.Channelize(c, channels, out)
	require.NoError(t, err)
	assert.Same(t, out, again)
}

func TestChannelizeErrors(t *testing.T) {
	c := &psrpipe.Chunk{Samples: [][]complex64{make([]complex64, 10)}}
	f := channelize.New()
	_, err := f.Channelize(c, 4, nil)
	assert.ErrorIs(t, err, psrpipe.ErrConfig)
	_, err = f.Channelize(c, 5, nil)
	assert.ErrorIs(t, err, psrpipe.ErrConfig)
}

func TestFreqs(t *testing.T) {
	assert.Equal(t, []float64{60, 70, 80, 90}, channelize.Freqs(80, 40, 4))
}
