// Package window keeps the previous, current and next spectra needed to
// dedisperse a block across its boundaries.
package window

import (
	"errors"

	"github.com/pipelined/psrpipe"
)

// ErrNotReady is returned by Dedisperse when no next block was pushed.
var ErrNotReady = errors.New("window has no next block")

// Window is a three-slot ring of spectra. Slots are never copied: rotating
// the window only moves the index of the current slot.
//
// The first pushed block only fills the window. Every following push makes
// the previously pushed block dedispersable, so a stream of K blocks yields
// K-1 dedispersed blocks and the last block is dropped.
type Window struct {
	d       psrpipe.Dedisperser
	ring    [3]*psrpipe.Spectra
	cur     int
	pushed  int
	ready   bool
	out     *psrpipe.Spectra
	emitted int
}

// New returns an empty window.
func New(d psrpipe.Dedisperser) *Window {
	return &Window{d: d}
}

func (w *Window) next() int {
	return (w.cur + 1) % 3
}

func (w *Window) prev() int {
	return (w.cur + 2) % 3
}

// Next returns the buffer that will hold the next block. It is nil until
// the ring is fully allocated and must be passed to the channelizer for
// reuse.
func (w *Window) Next() *psrpipe.Spectra {
	return w.ring[w.next()]
}

// Push stores s as the next block and reports if the current block can be
// dedispersed.
func (w *Window) Push(s *psrpipe.Spectra) bool {
	w.ring[w.next()] = s
	w.pushed++
	if w.pushed == 1 {
		// pipeline fill: the first block becomes current
		w.cur = w.next()
		return false
	}
	w.ready = true
	return true
}

// Current returns the block which is dedispersed by the next Dedisperse call.
func (w *Window) Current() *psrpipe.Spectra {
	if w.pushed == 0 {
		return nil
	}
	return w.ring[w.cur]
}

// Dedisperse dedisperses the current block and rotates the window: the
// current block becomes previous and the next block becomes current.
// The returned spectra are reused by the following call.
func (w *Window) Dedisperse() (*psrpipe.Spectra, error) {
	if !w.ready {
		return nil, ErrNotReady
	}
	cur, next := w.ring[w.cur], w.ring[w.next()]
	prev := w.ring[w.prev()]
	if prev == nil {
		// there is nothing before the first block
		prev = psrpipe.NewSpectra(cur.Streams(), cur.Channels, cur.Length)
		w.ring[w.prev()] = prev
	}
	out, err := w.d.Dedisperse(cur, prev, next, w.out)
	if err != nil {
		return nil, err
	}
	w.out = out
	w.cur = w.next()
	w.ready = false
	w.emitted++
	return out, nil
}

// Emitted returns the number of dedispersed blocks.
func (w *Window) Emitted() int {
	return w.emitted
}
