// Package quantize packs reduced power into 4 or 8 bit samples with a
// per-channel scale and offset.
package quantize

import (
	"fmt"
	"math"

	"github.com/pipelined/psrpipe"
)

// Levels is the output of an optimizer for both tunings.
type Levels struct {
	Bits     int
	Pols     int
	Channels int
	Length   int
	// Offsets and Scales are indexed [tuning*Pols+pol][channel].
	Offsets [][]float32
	Scales  [][]float32
	// Data is indexed [tuning*Pols+pol][channel][spectrum].
	Data [][][]uint8
}

func (l *Levels) fits(bits int, in *psrpipe.Reduced) bool {
	return l != nil && l.Bits == bits && l.Pols == in.Pols && l.Channels == in.Channels && l.Length == in.Length
}

func newLevels(bits int, in *psrpipe.Reduced) *Levels {
	n := len(in.Data)
	l := &Levels{
		Bits:     bits,
		Pols:     in.Pols,
		Channels: in.Channels,
		Length:   in.Length,
		Offsets:  make([][]float32, n),
		Scales:   make([][]float32, n),
		Data:     make([][][]uint8, n),
	}
	for i := 0; i < n; i++ {
		l.Offsets[i] = make([]float32, in.Channels)
		l.Scales[i] = make([]float32, in.Channels)
		l.Data[i] = make([][]uint8, in.Channels)
		for c := range l.Data[i] {
			l.Data[i][c] = make([]uint8, in.Length)
		}
	}
	return l
}

// OptimizeFunc computes the levels of in. The out value is reused when it
// has the right shape.
type OptimizeFunc func(in *psrpipe.Reduced, out *Levels) *Levels

// Optimize8Bit quantizes in to 256 levels.
func Optimize8Bit(in *psrpipe.Reduced, out *Levels) *Levels {
	return optimize(8, in, out)
}

// Optimize4Bit quantizes in to 16 levels.
func Optimize4Bit(in *psrpipe.Reduced, out *Levels) *Levels {
	return optimize(4, in, out)
}

// optimize maps the range of every channel onto the full set of levels.
func optimize(bits int, in *psrpipe.Reduced, out *Levels) *Levels {
	if !out.fits(bits, in) {
		out = newLevels(bits, in)
	}
	top := float64(int(1)<<bits - 1)
	for i := range in.Data {
		for c, values := range in.Data[i] {
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, v := range values {
				lo = math.Min(lo, float64(v))
				hi = math.Max(hi, float64(v))
			}
			scale := (hi - lo) / top
			if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
				scale = 1
			}
			if math.IsInf(lo, 0) || math.IsNaN(lo) {
				lo = 0
			}
			out.Offsets[i][c] = float32(lo)
			out.Scales[i][c] = float32(scale)
			levels := out.Data[i][c]
			for j, v := range values {
				l := math.Round((float64(v) - lo) / scale)
				levels[j] = uint8(math.Max(0, math.Min(top, l)))
			}
		}
	}
	return out
}

// Adapter runs an optimizer and splits its result per tuning. All buffers
// are allocated by the first call and reused after.
type Adapter struct {
	bits   int
	fn     OptimizeFunc
	levels *Levels
	out    [psrpipe.NumTunings]*psrpipe.Quantized
}

// New returns an adapter for 4 or 8 bit samples.
func New(bits int) (*Adapter, error) {
	var fn OptimizeFunc
	switch bits {
	case 4:
		fn = Optimize4Bit
	case 8:
		fn = Optimize8Bit
	default:
		return nil, fmt.Errorf("%w: unsupported bits per sample: %d", psrpipe.ErrConfig, bits)
	}
	return &Adapter{bits: bits, fn: fn}, nil
}

// Quantize quantizes r. The results are overwritten by the next call.
func (a *Adapter) Quantize(r *psrpipe.Reduced) ([psrpipe.NumTunings]*psrpipe.Quantized, error) {
	if a.bits == 4 && (r.Pols*r.Channels*r.Length)%2 != 0 {
		return a.out, fmt.Errorf("%w: odd number of 4-bit samples per row", psrpipe.ErrConfig)
	}
	a.levels = a.fn(r, a.levels)
	for t := range a.out {
		a.out[t] = a.split(t, a.out[t])
	}
	return a.out, nil
}

// split copies the levels of tuning t in polarization-major order.
func (a *Adapter) split(t int, q *psrpipe.Quantized) *psrpipe.Quantized {
	l := a.levels
	size := l.Pols * l.Channels
	if q == nil || q.Pols != l.Pols || q.Channels != l.Channels || q.Length != l.Length {
		q = &psrpipe.Quantized{
			Bits:     a.bits,
			Pols:     l.Pols,
			Channels: l.Channels,
			Length:   l.Length,
			Offsets:  make([]float32, size),
			Scales:   make([]float32, size),
			Data:     make([]byte, size*l.Length*a.bits/8),
		}
	}
	for p := 0; p < l.Pols; p++ {
		copy(q.Offsets[p*l.Channels:], l.Offsets[t*l.Pols+p])
		copy(q.Scales[p*l.Channels:], l.Scales[t*l.Pols+p])
	}
	if a.bits == 4 {
		clear(q.Data)
	}
	for j := 0; j < l.Length; j++ {
		for p := 0; p < l.Pols; p++ {
			levels := l.Data[t*l.Pols+p]
			base := (j*l.Pols + p) * l.Channels
			for c := 0; c < l.Channels; c++ {
				k := base + c
				if a.bits == 8 {
					q.Data[k] = levels[c][j]
					continue
				}
				if k%2 == 0 {
					q.Data[k/2] |= levels[c][j] << 4
				} else {
					q.Data[k/2] |= levels[c][j] & 0x0f
				}
			}
		}
	}
	return q
}

// Decode converts a quantized row back to power values indexed
// [pol][channel][spectrum].
func Decode(q *psrpipe.Quantized) [][][]float32 {
	out := make([][][]float32, q.Pols)
	for p := range out {
		out[p] = make([][]float32, q.Channels)
		for c := range out[p] {
			out[p][c] = make([]float32, q.Length)
		}
	}
	for j := 0; j < q.Length; j++ {
		for p := 0; p < q.Pols; p++ {
			for c := 0; c < q.Channels; c++ {
				k := (j*q.Pols+p)*q.Channels + c
				var level byte
				switch {
				case q.Bits == 8:
					level = q.Data[k]
				case k%2 == 0:
					level = q.Data[k/2] >> 4
				default:
					level = q.Data[k/2] & 0x0f
				}
				i := p*q.Channels + c
				out[p][c][j] = float32(level)*q.Scales[i] + q.Offsets[i]
			}
		}
	}
	return out
}
