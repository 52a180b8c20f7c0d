package drx

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pipelined/psrpipe"
)

// File is a DRX file opened for sequential reading of frame sets.
type File struct {
	f     *os.File
	r     *bufio.Reader
	info  psrpipe.Info
	frame []byte
	got   [FramesPerSet]bool
}

var _ psrpipe.Source = (*File)(nil)

// Open opens the file and reads the first frame set to describe the stream.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	d := &File{
		f:     f,
		r:     bufio.NewReaderSize(f, FrameSize*FramesPerSet),
		frame: make([]byte, FrameSize),
	}
	info, err := d.describe()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	info.Name = filepath.Base(path)
	info.FrameSets = st.Size() / (FrameSize * FramesPerSet)
	d.info = info
	if err := d.Seek(0); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func (d *File) describe() (psrpipe.Info, error) {
	var info psrpipe.Info
	for i := 0; i < FramesPerSet; i++ {
		h, err := d.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return info, err
		}
		if i == 0 {
			info.Beam = h.Beam()
			info.SampleRate = h.SampleRate()
			info.StartTick = h.StartTick()
		}
		if h.SampleRate() != info.SampleRate || h.SampleRate() == 0 {
			return info, fmt.Errorf("drx: invalid decimation %d", h.Decimation)
		}
		info.Freq[h.Tuning()-1] = h.Freq()
		if t := h.StartTick(); t < info.StartTick {
			info.StartTick = t
		}
	}
	return info, nil
}

// next reads one frame into the frame buffer.
func (d *File) next() (Header, error) {
	if _, err := io.ReadFull(d.r, d.frame); err != nil {
		return Header{}, err
	}
	return ParseHeader(d.frame)
}

// Info returns the stream description.
func (d *File) Info() psrpipe.Info {
	return d.info
}

// Seek positions the reader frameSets frame sets from the start of the file.
func (d *File) Seek(frameSets int64) error {
	if frameSets < 0 {
		return fmt.Errorf("drx: negative seek %d", frameSets)
	}
	if _, err := d.f.Seek(frameSets*FrameSize*FramesPerSet, io.SeekStart); err != nil {
		return err
	}
	d.r.Reset(d.f)
	return nil
}

// ReadChunk reads samples per stream. The sample count must be a multiple
// of the frame size.
func (d *File) ReadChunk(samples int) (*psrpipe.Chunk, error) {
	if samples <= 0 || samples%psrpipe.FrameSamples != 0 {
		return nil, fmt.Errorf("%w: chunk of %d samples is not a multiple of %d", psrpipe.ErrConfig, samples, psrpipe.FrameSamples)
	}
	c := &psrpipe.Chunk{Samples: make([][]complex64, psrpipe.NumStreams)}
	for i := range c.Samples {
		c.Samples[i] = make([]complex64, samples)
	}
	for set := 0; set < samples/psrpipe.FrameSamples; set++ {
		clear(d.got[:])
		for i := 0; i < FramesPerSet; i++ {
			h, err := d.next()
			switch {
			case errors.Is(err, io.EOF) && set == 0 && i == 0:
				return nil, psrpipe.ErrEndOfStream
			case errors.Is(err, io.EOF):
				return nil, io.ErrUnexpectedEOF
			case err != nil:
				return nil, err
			}
			s := h.Stream()
			if d.got[s] {
				return nil, fmt.Errorf("drx: duplicate frame for tuning %d pol %d", h.Tuning(), h.Pol())
			}
			d.got[s] = true
			if set == 0 && (i == 0 || h.StartTick() < c.Tick) {
				c.Tick = h.StartTick()
			}
			off := set * psrpipe.FrameSamples
			Decode(d.frame[HeaderSize:], c.Samples[s][off:off+psrpipe.FrameSamples])
		}
	}
	return c, nil
}

// Close closes the underlying file.
func (d *File) Close() error {
	return d.f.Close()
}
