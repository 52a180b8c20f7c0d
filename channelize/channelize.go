// Package channelize splits raw streams into frequency channels.
package channelize

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/pipelined/psrpipe"
)

// FFT is a channelizer built on consecutive non-overlapping FFTs. Channels
// are stored in shifted order, lowest frequency first. It is not safe for
// concurrent use.
type FFT struct {
	fft      *fourier.CmplxFFT
	seq      []complex128
	coeff    []complex128
	channels int
}

var _ psrpipe.Channelizer = (*FFT)(nil)

// New returns an FFT channelizer.
func New() *FFT {
	return &FFT{}
}

func (f *FFT) setup(channels int) {
	if f.channels == channels {
		return
	}
	f.fft = fourier.NewCmplxFFT(channels)
	f.seq = make([]complex128, channels)
	f.coeff = make([]complex128, channels)
	f.channels = channels
}

// Channelize implements psrpipe.Channelizer.
func (f *FFT) Channelize(c *psrpipe.Chunk, channels int, out *psrpipe.Spectra) (*psrpipe.Spectra, error) {
	n := c.Size()
	if channels < 2 || channels%2 != 0 {
		return nil, fmt.Errorf("%w: invalid channel count %d", psrpipe.ErrConfig, channels)
	}
	if n%channels != 0 {
		return nil, fmt.Errorf("%w: chunk of %d samples is not a multiple of %d channels", psrpipe.ErrConfig, n, channels)
	}
	f.setup(channels)
	length := n / channels
	if !out.Fits(len(c.Samples), channels, length) {
		out = psrpipe.NewSpectra(len(c.Samples), channels, length)
	}
	half := channels / 2
	for s, samples := range c.Samples {
		for j := 0; j < length; j++ {
			for i, v := range samples[j*channels : (j+1)*channels] {
				f.seq[i] = complex128(v)
			}
			f.fft.Coefficients(f.coeff, f.seq)
			for ch := range out.Data[s] {
				out.Data[s][ch][j] = complex64(f.coeff[(ch+half)%channels])
			}
		}
	}
	return out, nil
}

// Freqs returns the channel center frequencies in Hz, in the order used by
// Channelize.
func Freqs(center, sampleRate float64, channels int) []float64 {
	freqs := make([]float64, channels)
	for c := range freqs {
		freqs[c] = center + float64(c-channels/2)*sampleRate/float64(channels)
	}
	return freqs
}
