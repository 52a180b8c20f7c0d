package rfi

import (
	"math"

	"github.com/pipelined/psrpipe"
)

// DefaultSigma is the width of the accepted spectral kurtosis range.
const DefaultSigma = 4.0

// SpectralKurtosis flags channels whose power statistics differ from
// Gaussian noise.
type SpectralKurtosis struct {
	Lower float64
	Upper float64
}

// Limits returns the accepted spectral kurtosis range for m power samples
// per channel, sigma standard deviations wide.
func Limits(sigma float64, m int) (lower, upper float64) {
	fm := float64(m)
	sd := math.Sqrt(4 * fm * fm / ((fm - 1) * (fm + 2) * (fm + 3)))
	return 1 - sigma*sd, 1 + sigma*sd
}

// NewSpectralKurtosis returns a masker calibrated for blocks of m spectra.
func NewSpectralKurtosis(sigma float64, m int) SpectralKurtosis {
	l, u := Limits(sigma, m)
	return SpectralKurtosis{Lower: l, Upper: u}
}

// Mask implements psrpipe.Masker.
func (sk SpectralKurtosis) Mask(s *psrpipe.Spectra, out [][]float32) [][]float32 {
	out = alloc(out, s.Streams(), s.Channels)
	for i := range s.Data {
		for c, spectrum := range s.Data[i] {
			v := Estimate(spectrum)
			if v >= sk.Lower && v <= sk.Upper {
				out[i][c] = 1
			} else {
				out[i][c] = 0
			}
		}
	}
	return out
}

// Estimate returns the spectral kurtosis of a channel. An empty or silent
// channel yields NaN.
func Estimate(x []complex64) float64 {
	m := float64(len(x))
	if m < 2 {
		return math.NaN()
	}
	var s1, s2 float64
	for _, v := range x {
		p := float64(real(v))*float64(real(v)) + float64(imag(v))*float64(imag(v))
		s1 += p
		s2 += p * p
	}
	if s1 == 0 {
		return math.NaN()
	}
	return (m + 1) / (m - 1) * (m*s2/(s1*s1) - 1)
}
