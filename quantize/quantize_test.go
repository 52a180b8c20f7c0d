package quantize_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/quantize"
)

func reduced(t *rapid.T, pols, channels, length int) *psrpipe.Reduced {
	r := psrpipe.NewReduced(pols, channels, length)
	for i := range r.Data {
		for c := range r.Data[i] {
			for j := range r.Data[i][c] {
				r.Data[i][c][j] = rapid.Float32Range(0, 1000).Draw(t, "power")
			}
		}
	}
	return r
}

func TestRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bits := rapid.SampledFrom([]int{4, 8}).Draw(t, "bits")
		pols := rapid.SampledFrom([]int{1, 2, 4}).Draw(t, "pols")
		channels := 2 * rapid.IntRange(1, 8).Draw(t, "channels")
		length := rapid.IntRange(1, 8).Draw(t, "length")
		r := reduced(t, pols, channels, length)

		a, err := quantize.New(bits)
		if err != nil {
			t.Fatal(err)
		}
		q, err := a.Quantize(r)
		if err != nil {
			t.Fatal(err)
		}
		for tn := range q {
			decoded := quantize.Decode(q[tn])
			for p := range decoded {
				for c := range decoded[p] {
					step := float64(q[tn].Scales[p*channels+c])
					for j, v := range decoded[p][c] {
						w := r.Data[tn*pols+p][c][j]
						want := float64(w)
						// decoded values are float32 too
						ulp := float64(math.Nextafter32(w, math.MaxFloat32) - w)
						if diff := math.Abs(float64(v) - want); diff > step*(1+1e-3)+2*ulp {
							t.Fatalf("sample %d/%d/%d/%d: decoded %v, want %v, step %v", tn, p, c, j, v, want, step)
						}
					}
				}
			}
		}
	})
}

func TestIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bits := rapid.SampledFrom([]int{4, 8}).Draw(t, "bits")
		r := reduced(t, 2, 4, 6)
		run := func() [psrpipe.NumTunings]psrpipe.Quantized {
			a, _ := quantize.New(bits)
			q, err := a.Quantize(r)
			if err != nil {
				t.Fatal(err)
			}
			return [psrpipe.NumTunings]psrpipe.Quantized{*q[0], *q[1]}
		}
		first, second := run(), run()
		assert.Equal(t, first, second)
	})
}

func TestReuse(t *testing.T) {
	a, err := quantize.New(8)
	require.NoError(t, err)
	r := psrpipe.NewReduced(1, 4, 2)
	first, err := a.Quantize(r)
	require.NoError(t, err)
	second, err := a.Quantize(r)
	require.NoError(t, err)
	assert.Same(t, first[0], second[0])
	assert.Same(t, first[1], second[1])
	// constant channels get unit scale
	for _, s := range second[0].Scales {
		assert.Equal(t, float32(1), s)
	}
}

func TestLayout(t *testing.T) {
	r := psrpipe.NewReduced(2, 2, 2)
	// tuning 1, pol 1, channel 0 ramps from 0 to 15
	r.Data[1][0][0], r.Data[1][0][1] = 0, 15
	a, err := quantize.New(4)
	require.NoError(t, err)
	q, err := a.Quantize(r)
	require.NoError(t, err)
	row := q[0]
	assert.Equal(t, 4, row.Bits)
	// [spectrum][pol][channel]: spectrum 1, pol 1, channel 0 is sample 6,
	// the high nibble of byte 3
	assert.Equal(t, []byte{0, 0, 0, 0xf0}, row.Data)
	assert.Equal(t, []float32{1, 1, 1, 1}, row.Scales)
	assert.Equal(t, make([]byte, 4), q[1].Data)
}

func TestBits(t *testing.T) {
	_, err := quantize.New(16)
	assert.ErrorIs(t, err, psrpipe.ErrConfig)
}
