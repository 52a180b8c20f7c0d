// Package polarization reduces raw X/Y spectra of both tunings into the
// selected output polarization basis.
package polarization

import (
	"fmt"

	"github.com/pipelined/psrpipe"
)

// Mode is an output polarization basis.
type Mode int

const (
	// Linear keeps XX and YY. This is the pass-through mode.
	Linear Mode = iota
	// Intensity sums XX and YY into total intensity.
	Intensity
	// Stokes converts to full Stokes IQUV.
	Stokes
	// Circular converts to LL and RR.
	Circular
)

// Select resolves the polarization flags into a mode. Stokes and
// circularization are mutually exclusive and both exclude summing.
func Select(sum, stokes, circular bool) (Mode, error) {
	n := 0
	for _, set := range []bool{sum, stokes, circular} {
		if set {
			n++
		}
	}
	if n > 1 {
		return Linear, fmt.Errorf("%w: only one of polarization summing, stokes and circularization can be set", psrpipe.ErrConfig)
	}
	switch {
	case sum:
		return Intensity, nil
	case stokes:
		return Stokes, nil
	case circular:
		return Circular, nil
	}
	return Linear, nil
}

// NumPols returns the number of output polarizations per tuning.
func (m Mode) NumPols() int {
	switch m {
	case Intensity:
		return 1
	case Stokes:
		return 4
	}
	return 2
}

// Label returns the polarization order label.
func (m Mode) Label() string {
	switch m {
	case Intensity:
		return "I"
	case Stokes:
		return "IQUV"
	case Circular:
		return "LLRR"
	}
	return "XXYY"
}

// PolType returns the feed polarization type.
func (m Mode) PolType() string {
	if m == Circular {
		return "CIRC"
	}
	return "LIN"
}

func (m Mode) String() string {
	switch m {
	case Intensity:
		return "intensity"
	case Stokes:
		return "stokes"
	case Circular:
		return "circular"
	}
	return "linear"
}

// ReduceFunc combines the X and Y streams of both tunings. The out value is
// reused when it has the right shape.
type ReduceFunc func(in *psrpipe.Spectra, out *psrpipe.Reduced) *psrpipe.Reduced

// Func returns the reduction of the mode.
func (m Mode) Func() ReduceFunc {
	switch m {
	case Intensity:
		return ReduceIntensity
	case Stokes:
		return ReduceStokes
	case Circular:
		return ReduceCircular
	}
	return ReduceLinear
}

// Reducer applies one mode and owns the output buffer.
type Reducer struct {
	Mode
	fn  ReduceFunc
	out *psrpipe.Reduced
}

// NewReducer returns a reducer for mode m.
func NewReducer(m Mode) *Reducer {
	return &Reducer{
		Mode: m,
		fn:   m.Func(),
	}
}

// Reduce combines in. The result is overwritten by the next call.
func (r *Reducer) Reduce(in *psrpipe.Spectra) *psrpipe.Reduced {
	r.out = r.fn(in, r.out)
	return r.out
}

func prepare(in *psrpipe.Spectra, out *psrpipe.Reduced, pols int) *psrpipe.Reduced {
	if out.Fits(pols, in.Channels, in.Length) {
		return out
	}
	return psrpipe.NewReduced(pols, in.Channels, in.Length)
}

// each calls fn for every sample of both tunings with the X and Y values.
func each(in *psrpipe.Spectra, fn func(t, c, j int, x, y complex64)) {
	for t := 0; t < psrpipe.NumTunings; t++ {
		xs, ys := in.Data[2*t], in.Data[2*t+1]
		for c := range xs {
			for j := range xs[c] {
				fn(t, c, j, xs[c][j], ys[c][j])
			}
		}
	}
}

func power(v complex64) float32 {
	return real(v)*real(v) + imag(v)*imag(v)
}

// ReduceIntensity computes XX+YY.
func ReduceIntensity(in *psrpipe.Spectra, out *psrpipe.Reduced) *psrpipe.Reduced {
	out = prepare(in, out, 1)
	each(in, func(t, c, j int, x, y complex64) {
		out.Data[t][c][j] = power(x) + power(y)
	})
	return out
}

// ReduceLinear computes XX and YY.
func ReduceLinear(in *psrpipe.Spectra, out *psrpipe.Reduced) *psrpipe.Reduced {
	out = prepare(in, out, 2)
	each(in, func(t, c, j int, x, y complex64) {
		out.Data[2*t][c][j] = power(x)
		out.Data[2*t+1][c][j] = power(y)
	})
	return out
}

// ReduceStokes computes I, Q, U and V.
func ReduceStokes(in *psrpipe.Spectra, out *psrpipe.Reduced) *psrpipe.Reduced {
	out = prepare(in, out, 4)
	each(in, func(t, c, j int, x, y complex64) {
		xx, yy := power(x), power(y)
		// x * conj(y)
		xy := x * complex(real(y), -imag(y))
		out.Data[4*t][c][j] = xx + yy
		out.Data[4*t+1][c][j] = xx - yy
		out.Data[4*t+2][c][j] = 2 * real(xy)
		out.Data[4*t+3][c][j] = -2 * imag(xy)
	})
	return out
}

// ReduceCircular computes LL and RR.
func ReduceCircular(in *psrpipe.Spectra, out *psrpipe.Reduced) *psrpipe.Reduced {
	out = prepare(in, out, 2)
	each(in, func(t, c, j int, x, y complex64) {
		i := power(x) + power(y)
		v := -2 * imag(x*complex(real(y), -imag(y)))
		out.Data[2*t][c][j] = (i - v) / 2
		out.Data[2*t+1][c][j] = (i + v) / 2
	})
	return out
}
