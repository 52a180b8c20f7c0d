package pipe

import (
	"github.com/pipelined/psrpipe"
)

// shifter moves the start of every chunk forward by a sub-frame sample
// offset. It keeps the last frame of the previous read as a tail, so one
// frame is read ahead when the shifter is created.
type shifter struct {
	src    psrpipe.Source
	offset int
	tps    int64
	tail   [][]complex64
	spare  [][]complex64
	tick   int64
}

func newShifter(src psrpipe.Source, offset int, ticksPerSample int64) (*shifter, error) {
	s := &shifter{
		src:    src,
		offset: offset,
		tps:    ticksPerSample,
	}
	if offset == 0 {
		return s, nil
	}
	c, err := src.ReadChunk(psrpipe.FrameSamples)
	if err != nil {
		return nil, err
	}
	s.tail = c.Samples
	s.tick = c.Tick
	s.spare = make([][]complex64, len(c.Samples))
	for i := range s.spare {
		s.spare[i] = make([]complex64, psrpipe.FrameSamples)
	}
	return s, nil
}

// read returns the next chunk of samples starting offset samples after the
// stream position. The chunk is shifted in place.
func (s *shifter) read(samples int) (*psrpipe.Chunk, error) {
	c, err := s.src.ReadChunk(samples)
	if err != nil || s.offset == 0 {
		return c, err
	}
	const frame = psrpipe.FrameSamples
	head := frame - s.offset
	for i, stream := range c.Samples {
		copy(s.spare[i], stream[len(stream)-frame:])
		copy(stream[head:], stream[:len(stream)-head])
		copy(stream[:head], s.tail[i][s.offset:])
	}
	s.tail, s.spare = s.spare, s.tail
	tick := s.tick + int64(s.offset)*s.tps
	s.tick = c.Tick + int64(samples-frame)*s.tps
	c.Tick = tick
	return c, nil
}
