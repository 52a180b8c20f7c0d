package window_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/window"
)

// tagged dedisperser records the first value of each role.
type tagged struct {
	calls [][3]complex64
	err   error
}

func (d *tagged) Dedisperse(cur, prev, next, out *psrpipe.Spectra) (*psrpipe.Spectra, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.calls = append(d.calls, [3]complex64{prev.Data[0][0][0], cur.Data[0][0][0], next.Data[0][0][0]})
	if !out.Fits(cur.Streams(), cur.Channels, cur.Length) {
		out = psrpipe.NewSpectra(cur.Streams(), cur.Channels, cur.Length)
	}
	out.Data[0][0][0] = cur.Data[0][0][0]
	return out, nil
}

func block(reuse *psrpipe.Spectra, v complex64) *psrpipe.Spectra {
	if !reuse.Fits(1, 1, 1) {
		reuse = psrpipe.NewSpectra(1, 1, 1)
	}
	reuse.Data[0][0][0] = v
	return reuse
}

func TestWindow(t *testing.T) {
	for _, k := range []int{1, 2, 3, 10} {
		d := &tagged{}
		w := window.New(d)
		allocs := map[*psrpipe.Spectra]struct{}{}
		var outputs []complex64
		for i := 1; i <= k; i++ {
			s := block(w.Next(), complex(float32(i), 0))
			allocs[s] = struct{}{}
			if !w.Push(s) {
				continue
			}
			assert.Equal(t, complex(float32(i-1), 0), w.Current().Data[0][0][0])
			out, err := w.Dedisperse()
			require.NoError(t, err)
			outputs = append(outputs, out.Data[0][0][0])
		}
		assert.Equal(t, k-1, w.Emitted(), "blocks: %d", k)
		assert.Len(t, outputs, max(k-1, 0))
		for i, v := range outputs {
			assert.Equal(t, complex(float32(i+1), 0), v)
		}
		// one block of look-ahead is never dedispersed
		assert.LessOrEqual(t, len(allocs), 3)
		if k > 2 {
			// first call has an empty previous block
			assert.Equal(t, [3]complex64{0, 1, 2}, d.calls[0])
			assert.Equal(t, [3]complex64{1, 2, 3}, d.calls[1])
		}
	}
}

func TestNotReady(t *testing.T) {
	w := window.New(&tagged{})
	_, err := w.Dedisperse()
	assert.ErrorIs(t, err, window.ErrNotReady)
	w.Push(block(nil, 1))
	_, err = w.Dedisperse()
	assert.ErrorIs(t, err, window.ErrNotReady)
}

func TestDedisperseError(t *testing.T) {
	errTest := errors.New("test error")
	w := window.New(&tagged{err: errTest})
	w.Push(block(nil, 1))
	require.True(t, w.Push(block(nil, 2)))
	_, err := w.Dedisperse()
	assert.ErrorIs(t, err, errTest)
	assert.Equal(t, 0, w.Emitted())
}
