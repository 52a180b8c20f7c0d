package dedisperse

import (
	"math"
	"math/cmplx"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/channelize"
)

// Rotator applies a sub-sample delay as a per-channel phase rotation.
type Rotator struct {
	freqs [psrpipe.NumTunings][]float64
}

var _ psrpipe.PhaseRotator = (*Rotator)(nil)

// NewRotator returns a rotator for the given tuning centers in Hz.
func NewRotator(sampleRate float64, centers [psrpipe.NumTunings]float64, channels int) *Rotator {
	var r Rotator
	for t, fc := range centers {
		r.freqs[t] = channelize.Freqs(fc, sampleRate, channels)
	}
	return &r
}

// Rotate multiplies every channel by exp(-2*pi*i*f*delay), where f is the
// channel frequency.
func (r *Rotator) Rotate(s *psrpipe.Spectra, delay float64) {
	if delay == 0 || s.Streams()%psrpipe.NumTunings != 0 {
		return
	}
	perTuning := s.Streams() / psrpipe.NumTunings
	for i := range s.Data {
		freqs := r.freqs[i/perTuning]
		for c := range s.Data[i] {
			if c >= len(freqs) {
				break
			}
			rot := complex64(cmplx.Rect(1, -2*math.Pi*math.Mod(freqs[c]*delay, 1)))
			for j := range s.Data[i][c] {
				s.Data[i][c][j] *= rot
			}
		}
	}
}
