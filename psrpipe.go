// Package psrpipe converts simultaneously recorded DRX voltage streams into
// PSRFITS search-mode files.
//
// The root package holds the data model that flows through the pipeline and
// the interfaces of the numeric collaborators. The pipeline itself lives in
// package pipe:
//
//	Source -> reader -> queue -> Channelizer -> window (Dedisperser)
//	       -> polarization -> quantize -> psrfits
//
// with package rfi computing per-channel weights from the un-dedispersed
// spectra and package align computing per-file offsets before anything runs.
package psrpipe

import "io"

const (
	// ClockRate is the digital processor clock in Hz. Time tags count its ticks.
	ClockRate = 196e6
	// NumTunings is the number of tunings recorded by a beam.
	NumTunings = 2
	// NumStreams is the number of raw streams per beam: two tunings with
	// two linear polarizations each, ordered T1X, T1Y, T2X, T2Y.
	NumStreams = 2 * NumTunings
	// FrameSamples is the number of samples per stream carried by one frame.
	FrameSamples = 4096
)

// ErrEndOfStream is returned by a Source when no more chunks are available.
var ErrEndOfStream = io.EOF

// Info describes an opened input stream. It is immutable.
type Info struct {
	Name       string
	Beam       int
	SampleRate float64
	// StartTick is the absolute time of the first sample in clock ticks.
	StartTick int64
	// Freq holds the center frequency of each tuning in Hz.
	Freq [NumTunings]float64
	// FrameSets is the number of complete frame sets in the stream.
	FrameSets int64
}

// TicksPerSample returns the number of clock ticks spanned by one sample.
func (i Info) TicksPerSample() int64 {
	return int64(ClockRate / i.SampleRate)
}

// Chunk is a fixed-duration block of raw samples for all streams of one input.
type Chunk struct {
	// Seq is assigned by the reader, starting at 1.
	Seq int64
	// Tick is the absolute time of the first sample.
	Tick int64
	// Samples is indexed [stream][sample].
	Samples [][]complex64
}

// Size returns the number of samples per stream.
func (c *Chunk) Size() int {
	if c == nil || len(c.Samples) == 0 {
		return 0
	}
	return len(c.Samples[0])
}

// Source is a raw sample stream.
// Implementations should use next error conventions for ReadChunk:
//   - nil if a full chunk was read;
//   - ErrEndOfStream if no data was left;
//   - any other error if the read was short or malformed.
type Source interface {
	Info() Info
	// Seek skips the provided number of frame sets from the start of the stream.
	Seek(frameSets int64) error
	ReadChunk(samples int) (*Chunk, error)
	Close() error
}

// Spectra is the channelized form of a chunk.
type Spectra struct {
	Channels int
	// Length is the number of spectra per channel.
	Length int
	// Data is indexed [stream][channel][spectrum].
	Data [][][]complex64
}

// NewSpectra allocates zeroed spectra.
func NewSpectra(streams, channels, length int) *Spectra {
	s := &Spectra{
		Channels: channels,
		Length:   length,
		Data:     make([][][]complex64, streams),
	}
	for i := range s.Data {
		s.Data[i] = make([][]complex64, channels)
		for c := range s.Data[i] {
			s.Data[i][c] = make([]complex64, length)
		}
	}
	return s
}

// Streams returns the number of streams.
func (s *Spectra) Streams() int {
	return len(s.Data)
}

// Fits reports if s can be reused to hold spectra of the provided shape.
func (s *Spectra) Fits(streams, channels, length int) bool {
	return s != nil && len(s.Data) == streams && s.Channels == channels && s.Length == length
}

// Zero resets all values.
func (s *Spectra) Zero() {
	for i := range s.Data {
		for c := range s.Data[i] {
			clear(s.Data[i][c])
		}
	}
}

// Reduced holds polarization-combined power for both tunings.
type Reduced struct {
	// Pols is the number of output polarizations per tuning.
	Pols     int
	Channels int
	Length   int
	// Data is indexed [tuning*Pols+pol][channel][spectrum].
	Data [][][]float32
}

// NewReduced allocates zeroed reduced data.
func NewReduced(pols, channels, length int) *Reduced {
	r := &Reduced{
		Pols:     pols,
		Channels: channels,
		Length:   length,
		Data:     make([][][]float32, NumTunings*pols),
	}
	for i := range r.Data {
		r.Data[i] = make([][]float32, channels)
		for c := range r.Data[i] {
			r.Data[i][c] = make([]float32, length)
		}
	}
	return r
}

// Fits reports if r can be reused for the provided shape.
func (r *Reduced) Fits(pols, channels, length int) bool {
	return r != nil && r.Pols == pols && r.Channels == channels && r.Length == length
}

// Quantized is the payload of one sub-integration row of one tuning.
type Quantized struct {
	Bits     int
	Pols     int
	Channels int
	Length   int
	// Offsets and Scales are indexed [pol*Channels+channel].
	Offsets []float32
	Scales  []float32
	// Data holds packed samples ordered [spectrum][pol][channel].
	// In 4-bit mode the first sample of a pair occupies the high nibble.
	Data []byte
}

// Channelizer converts raw samples into spectra. The out value is reused
// when it has the right shape.
type Channelizer interface {
	Channelize(c *Chunk, channels int, out *Spectra) (*Spectra, error)
}

// Dedisperser removes dispersion delay from cur using prev and next as
// padding. The out value is reused when it has the right shape.
type Dedisperser interface {
	Dedisperse(cur, prev, next, out *Spectra) (*Spectra, error)
}

// PhaseRotator applies a sub-sample delay in seconds to s in place.
type PhaseRotator interface {
	Rotate(s *Spectra, delay float64)
}

// Masker flags corrupted channels. The result is indexed [stream][channel],
// 1 for a good channel and 0 for a flagged one.
type Masker interface {
	Mask(s *Spectra, out [][]float32) [][]float32
}
