// Package rfi turns per-stream channel masks into per-tuning weights.
package rfi

import (
	"github.com/pipelined/psrpipe"
)

// Weights are the keep-weights of one block.
type Weights struct {
	// Tuning holds one weight per channel for each tuning.
	Tuning [psrpipe.NumTunings][]float32
	// Flagged is the fraction of zero-weighted channels for each tuning.
	Flagged [psrpipe.NumTunings]float64
}

// Bookkeeper computes weights for every block. Mask and weight buffers are
// allocated on the first call and reused after.
type Bookkeeper struct {
	masker psrpipe.Masker
	mask   [][]float32
	w      *Weights
}

// New returns a bookkeeper using m to flag channels. A nil masker disables
// detection and only edge channels are flagged.
func New(m psrpipe.Masker) *Bookkeeper {
	if m == nil {
		m = NoMask{}
	}
	return &Bookkeeper{masker: m}
}

// Weights computes the weights of s. A channel of a tuning is kept unless
// both of its polarizations are flagged. The two outermost channels are
// always dropped. The result is overwritten by the next call.
func (b *Bookkeeper) Weights(s *psrpipe.Spectra) *Weights {
	b.mask = b.masker.Mask(s, b.mask)
	if b.w == nil || len(b.w.Tuning[0]) != s.Channels {
		b.w = &Weights{}
		for t := range b.w.Tuning {
			b.w.Tuning[t] = make([]float32, s.Channels)
		}
	}
	pols := len(b.mask) / psrpipe.NumTunings
	for t := range b.w.Tuning {
		w := b.w.Tuning[t]
		var kept float64
		for c := range w {
			var sum float32
			for p := 0; p < pols; p++ {
				sum += b.mask[t*pols+p][c]
			}
			if sum == 0 || c == 0 || c == len(w)-1 {
				w[c] = 0
				continue
			}
			w[c] = 1
			kept++
		}
		b.w.Flagged[t] = (float64(len(w)) - kept) / float64(len(w))
	}
	return b.w
}

// NoMask keeps every channel but the two outermost.
type NoMask struct{}

// Mask implements psrpipe.Masker.
func (NoMask) Mask(s *psrpipe.Spectra, out [][]float32) [][]float32 {
	out = alloc(out, s.Streams(), s.Channels)
	for i := range out {
		for c := range out[i] {
			out[i][c] = 1
		}
		edges(out[i])
	}
	return out
}

func edges(m []float32) {
	if len(m) == 0 {
		return
	}
	m[0] = 0
	m[len(m)-1] = 0
}

func alloc(out [][]float32, streams, channels int) [][]float32 {
	if len(out) == streams && (streams == 0 || len(out[0]) == channels) {
		return out
	}
	out = make([][]float32, streams)
	for i := range out {
		out[i] = make([]float32, channels)
	}
	return out
}
