// Package mock provides mocks for pipeline components and allows to execute
// integration tests without DRX files.
package mock

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pipelined/psrpipe"
)

// ErrMock is returned by Source when ErrorAfter is reached and no
// ErrorOnCall is set.
var ErrMock = errors.New("mock error")

// Source mocks a psrpipe.Source. Samples are taken from Func when set, from
// Value otherwise.
type Source struct {
	counter
	Name       string
	Beam       int
	SampleRate float64
	StartTick  int64
	Freq       [psrpipe.NumTunings]float64
	// Limit is the number of frame sets in the stream.
	Limit    int64
	Value    complex64
	Func     func(stream int, sample int64) complex64
	Interval time.Duration
	// ErrorAfter fails the call after that many chunks were returned.
	ErrorAfter   int
	ErrorOnCall  error
	ErrorOnSeek  error
	ErrorOnClose error
	Closed       bool

	pos int64
}

var _ psrpipe.Source = (*Source)(nil)

// Info implements psrpipe.Source.
func (m *Source) Info() psrpipe.Info {
	return psrpipe.Info{
		Name:       m.Name,
		Beam:       m.Beam,
		SampleRate: m.SampleRate,
		StartTick:  m.StartTick,
		Freq:       m.Freq,
		FrameSets:  m.Limit,
	}
}

// Seek implements psrpipe.Source.
func (m *Source) Seek(frameSets int64) error {
	if m.ErrorOnSeek != nil {
		return m.ErrorOnSeek
	}
	m.pos = frameSets
	return nil
}

// ReadChunk implements psrpipe.Source.
func (m *Source) ReadChunk(samples int) (*psrpipe.Chunk, error) {
	if m.ErrorAfter > 0 && m.Messages() >= m.ErrorAfter {
		if m.ErrorOnCall != nil {
			return nil, m.ErrorOnCall
		}
		return nil, ErrMock
	}
	if m.ErrorAfter == 0 && m.ErrorOnCall != nil {
		return nil, m.ErrorOnCall
	}
	if samples%psrpipe.FrameSamples != 0 {
		return nil, fmt.Errorf("%w: %d samples", psrpipe.ErrConfig, samples)
	}
	sets := int64(samples / psrpipe.FrameSamples)
	switch {
	case m.pos >= m.Limit:
		return nil, psrpipe.ErrEndOfStream
	case m.pos+sets > m.Limit:
		m.pos = m.Limit
		return nil, io.ErrUnexpectedEOF
	}
	time.Sleep(m.Interval)

	first := m.pos * psrpipe.FrameSamples
	c := &psrpipe.Chunk{
		Tick:    m.StartTick + first*m.Info().TicksPerSample(),
		Samples: make([][]complex64, psrpipe.NumStreams),
	}
	for s := range c.Samples {
		c.Samples[s] = make([]complex64, samples)
		for i := range c.Samples[s] {
			if m.Func != nil {
				c.Samples[s][i] = m.Func(s, first+int64(i))
			} else {
				c.Samples[s][i] = m.Value
			}
		}
	}
	m.pos += sets
	m.advance(samples)
	return c, nil
}

// Close implements psrpipe.Source.
func (m *Source) Close() error {
	m.Closed = true
	return m.ErrorOnClose
}

// Opener maps paths to mocked sources.
type Opener map[string]*Source

// Open returns the source registered for the path.
func (o Opener) Open(path string) (psrpipe.Source, error) {
	s, ok := o[path]
	if !ok {
		return nil, fmt.Errorf("mock: %s: %w", path, io.ErrUnexpectedEOF)
	}
	s.pos = 0
	return s, nil
}

// Channelizer mocks a psrpipe.Channelizer by reshaping samples: spectrum j
// of channel c is sample j*channels+c.
type Channelizer struct {
	counter
	ErrorOnCall error
}

// Channelize implements psrpipe.Channelizer.
func (m *Channelizer) Channelize(c *psrpipe.Chunk, channels int, out *psrpipe.Spectra) (*psrpipe.Spectra, error) {
	if m.ErrorOnCall != nil {
		return nil, m.ErrorOnCall
	}
	length := c.Size() / channels
	if !out.Fits(len(c.Samples), channels, length) {
		out = psrpipe.NewSpectra(len(c.Samples), channels, length)
	}
	for s, samples := range c.Samples {
		for i, v := range samples {
			out.Data[s][i%channels][i/channels] = v
		}
	}
	m.advance(length)
	return out, nil
}

// Dedisperser mocks a psrpipe.Dedisperser by copying the current block.
type Dedisperser struct {
	counter
	ErrorOnCall error
	// NilPrev counts calls made without a previous block.
	NilPrev int
	// First records the first value of the current block of every call.
	First []complex64
}

// Dedisperse implements psrpipe.Dedisperser.
func (m *Dedisperser) Dedisperse(cur, prev, next, out *psrpipe.Spectra) (*psrpipe.Spectra, error) {
	if m.ErrorOnCall != nil {
		return nil, m.ErrorOnCall
	}
	if prev == nil {
		m.NilPrev++
	}
	if len(cur.Data) > 0 && cur.Channels > 0 && cur.Length > 0 {
		m.First = append(m.First, cur.Data[0][0][0])
	}
	if !out.Fits(cur.Streams(), cur.Channels, cur.Length) {
		out = psrpipe.NewSpectra(cur.Streams(), cur.Channels, cur.Length)
	}
	for s := range cur.Data {
		for c := range cur.Data[s] {
			copy(out.Data[s][c], cur.Data[s][c])
		}
	}
	m.advance(cur.Length)
	return out, nil
}

// Masker mocks a psrpipe.Masker. Flagged lists flagged channels per stream.
type Masker struct {
	counter
	Flagged map[int][]int
}

// Mask implements psrpipe.Masker.
func (m *Masker) Mask(s *psrpipe.Spectra, out [][]float32) [][]float32 {
	if len(out) != s.Streams() {
		out = make([][]float32, s.Streams())
	}
	for i := range out {
		if len(out[i]) != s.Channels {
			out[i] = make([]float32, s.Channels)
		}
		for c := range out[i] {
			out[i][c] = 1
		}
		for _, c := range m.Flagged[i] {
			out[i][c] = 0
		}
	}
	m.advance(s.Length)
	return out
}

// counter counts messages and samples.
type counter struct {
	mu       sync.Mutex
	messages int
	samples  int
}

func (c *counter) advance(size int) {
	c.mu.Lock()
	c.messages++
	c.samples += size
	c.mu.Unlock()
}

// Messages returns the number of calls.
func (c *counter) Messages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

// Count returns messages and samples metrics.
func (c *counter) Count() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages, c.samples
}
