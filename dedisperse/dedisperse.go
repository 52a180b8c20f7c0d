// Package dedisperse removes interstellar dispersion from channelized
// voltages.
//
// Each channel is treated as an independent baseband signal: the previous,
// current and next spectra of a channel are concatenated, transformed,
// multiplied by the inverse dispersion chirp for that channel and
// transformed back. The middle third is the dedispersed current block.
package dedisperse

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/channelize"
)

// Constant is the dispersion constant in Hz^2 s cm^3 / pc.
const Constant = 4.148808e15

// Delay returns the dispersion delay in seconds of f1 relative to f2, both in Hz.
func Delay(dm, f1, f2 float64) float64 {
	return Constant * dm * (1/(f1*f1) - 1/(f2*f2))
}

// CoherentSampleSize returns the number of spectra needed to dedisperse a
// channel of the given width centered on freq. The result is a power of two.
func CoherentSampleSize(freq, channelWidth, dm float64) int {
	delay := Delay(dm, freq-channelWidth/2, freq+channelWidth/2)
	n := math.Ceil(delay * channelWidth)
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(uint64(n)-1)
}

// Check reports an ErrConfig if a block of nsblk spectra is too short to
// dedisperse the lowest channel of either tuning.
func Check(dm, sampleRate float64, centers [psrpipe.NumTunings]float64, channels, nsblk int) error {
	width := sampleRate / float64(channels)
	for t, fc := range centers {
		if n := CoherentSampleSize(fc-sampleRate/2, width, dm); n > nsblk {
			return fmt.Errorf("%w: too few samples for coherent dedispersion at tuning %d: need %d spectra, have %d, consider increasing the number of channels", psrpipe.ErrConfig, t+1, n, nsblk)
		}
	}
	return nil
}

// Kernel implements psrpipe.Dedisperser. It is not safe for concurrent use.
type Kernel struct {
	dm    float64
	rate  float64
	freqs [psrpipe.NumTunings][]float64

	n      int
	fft    *fourier.CmplxFFT
	chirps [psrpipe.NumTunings][][]complex64
	seq    []complex128
	coeff  []complex128
}

var _ psrpipe.Dedisperser = (*Kernel)(nil)

// New returns a kernel for the given tuning centers in Hz.
func New(dm, sampleRate float64, centers [psrpipe.NumTunings]float64, channels int) *Kernel {
	k := &Kernel{
		dm:   dm,
		rate: sampleRate / float64(channels),
	}
	for t, fc := range centers {
		k.freqs[t] = channelize.Freqs(fc, sampleRate, channels)
	}
	return k
}

// setup builds the chirps for blocks of length spectra.
func (k *Kernel) setup(length int) {
	n := 3 * length
	if k.n == n {
		return
	}
	k.n = n
	k.fft = fourier.NewCmplxFFT(n)
	k.seq = make([]complex128, n)
	k.coeff = make([]complex128, n)
	for t, freqs := range k.freqs {
		k.chirps[t] = make([][]complex64, len(freqs))
		for c, f0 := range freqs {
			k.chirps[t][c] = chirp(k.dm, f0, k.rate, n)
		}
	}
}

// chirp returns the inverse dispersion response of a channel centered on f0
// sampled at rate, in FFT bin order. It includes the 1/n normalization of
// the inverse transform.
func chirp(dm, f0, rate float64, n int) []complex64 {
	h := make([]complex64, n)
	for i := range h {
		f := float64(i) * rate / float64(n)
		if i >= (n+1)/2 {
			f -= rate
		}
		phase := 2 * math.Pi * Constant * dm * f * f / (f0 * f0 * (f0 + f))
		h[i] = complex64(cmplx.Rect(1/float64(n), phase))
	}
	return h
}

// Dedisperse implements psrpipe.Dedisperser. A nil prev is treated as zeros.
func (k *Kernel) Dedisperse(cur, prev, next, out *psrpipe.Spectra) (*psrpipe.Spectra, error) {
	streams, channels, length := cur.Streams(), cur.Channels, cur.Length
	if streams%psrpipe.NumTunings != 0 || channels != len(k.freqs[0]) {
		return nil, fmt.Errorf("dedisperse: unexpected shape %d streams x %d channels", streams, channels)
	}
	if prev != nil && !prev.Fits(streams, channels, length) || !next.Fits(streams, channels, length) {
		return nil, fmt.Errorf("dedisperse: neighbour blocks do not match current block")
	}
	if !out.Fits(streams, channels, length) {
		out = psrpipe.NewSpectra(streams, channels, length)
	}
	if k.dm == 0 {
		for s := range cur.Data {
			for c := range cur.Data[s] {
				copy(out.Data[s][c], cur.Data[s][c])
			}
		}
		return out, nil
	}
	k.setup(length)
	perTuning := streams / psrpipe.NumTunings
	for s := range cur.Data {
		t := s / perTuning
		for c := range cur.Data[s] {
			k.load(prev, cur, next, s, c, length)
			k.fft.Coefficients(k.coeff, k.seq)
			for i, h := range k.chirps[t][c] {
				k.coeff[i] *= complex128(h)
			}
			k.fft.Sequence(k.seq, k.coeff)
			for j := range out.Data[s][c] {
				out.Data[s][c][j] = complex64(k.seq[length+j])
			}
		}
	}
	return out, nil
}

func (k *Kernel) load(prev, cur, next *psrpipe.Spectra, s, c, length int) {
	if prev == nil {
		clear(k.seq[:length])
	} else {
		for j, v := range prev.Data[s][c] {
			k.seq[j] = complex128(v)
		}
	}
	for j, v := range cur.Data[s][c] {
		k.seq[length+j] = complex128(v)
	}
	for j, v := range next.Data[s][c] {
		k.seq[2*length+j] = complex128(v)
	}
}
