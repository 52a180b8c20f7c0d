// Package drx reads raw DRX beam-former voltage files.
//
// A file is a sequence of 4128-byte frames. Each frame carries a 32-byte
// big-endian header and 4096 complex samples of one tuning and one linear
// polarization, each sample packed as a signed 4-bit I nibble (high) and a
// signed 4-bit Q nibble (low).
package drx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pipelined/psrpipe"
)

const (
	// SyncWord starts every frame.
	SyncWord uint32 = 0xDEC0DE5C
	// HeaderSize is the size of the frame header in bytes.
	HeaderSize = 32
	// FrameSize is the size of one frame in bytes.
	FrameSize = HeaderSize + psrpipe.FrameSamples
	// FramesPerSet is the number of frames recorded for one instant.
	FramesPerSet = psrpipe.NumStreams
)

// ErrSync is returned when a frame does not start with the sync word.
var ErrSync = errors.New("drx: frame sync lost")

// Header is the decoded frame header.
type Header struct {
	ID         byte
	FrameCount uint32
	Seconds    uint32
	Decimation uint16
	TimeOffset uint16
	TimeTag    uint64
	TuningWord uint32
	Flags      uint32
}

// Beam returns the beam number.
func (h Header) Beam() int { return int(h.ID & 0x07) }

// Tuning returns the tuning number, 1 or 2.
func (h Header) Tuning() int { return int((h.ID >> 3) & 0x07) }

// Pol returns the polarization, 0 for X and 1 for Y.
func (h Header) Pol() int { return int((h.ID >> 7) & 0x01) }

// Stream returns the index of the frame within a frame set.
func (h Header) Stream() int { return (h.Tuning()-1)*2 + h.Pol() }

// SampleRate returns the sample rate in Hz.
func (h Header) SampleRate() float64 {
	if h.Decimation == 0 {
		return 0
	}
	return psrpipe.ClockRate / float64(h.Decimation)
}

// Freq returns the tuning center frequency in Hz.
func (h Header) Freq() float64 {
	return float64(h.TuningWord) * psrpipe.ClockRate / (1 << 32)
}

// StartTick returns the time of the first sample in clock ticks.
func (h Header) StartTick() int64 {
	return int64(h.TimeTag) - int64(h.TimeOffset)
}

// ParseHeader decodes a frame header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("drx: short header: %d bytes", len(b))
	}
	if binary.BigEndian.Uint32(b[0:4]) != SyncWord {
		return Header{}, ErrSync
	}
	h := Header{
		ID:         b[4],
		FrameCount: uint32(b[5])<<16 | uint32(b[6])<<8 | uint32(b[7]),
		Seconds:    binary.BigEndian.Uint32(b[8:12]),
		Decimation: binary.BigEndian.Uint16(b[12:14]),
		TimeOffset: binary.BigEndian.Uint16(b[14:16]),
		TimeTag:    binary.BigEndian.Uint64(b[16:24]),
		TuningWord: binary.BigEndian.Uint32(b[24:28]),
		Flags:      binary.BigEndian.Uint32(b[28:32]),
	}
	if t := h.Tuning(); t < 1 || t > psrpipe.NumTunings {
		return h, fmt.Errorf("drx: invalid tuning %d", t)
	}
	return h, nil
}

// Decode unpacks the payload of a frame into dst.
func Decode(payload []byte, dst []complex64) {
	for i, b := range payload[:len(dst)] {
		dst[i] = complex(float32(int8(b)>>4), float32(int8(b<<4)>>4))
	}
}

// AppendFrame encodes a frame and appends it to dst. Sample components are
// truncated to the signed 4-bit range.
func AppendFrame(dst []byte, h Header, samples []complex64) []byte {
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], SyncWord)
	hdr[4] = h.ID
	hdr[5], hdr[6], hdr[7] = byte(h.FrameCount>>16), byte(h.FrameCount>>8), byte(h.FrameCount)
	binary.BigEndian.PutUint32(hdr[8:12], h.Seconds)
	binary.BigEndian.PutUint16(hdr[12:14], h.Decimation)
	binary.BigEndian.PutUint16(hdr[14:16], h.TimeOffset)
	binary.BigEndian.PutUint64(hdr[16:24], h.TimeTag)
	binary.BigEndian.PutUint32(hdr[24:28], h.TuningWord)
	binary.BigEndian.PutUint32(hdr[28:32], h.Flags)
	dst = append(dst, hdr[:]...)
	for i := 0; i < psrpipe.FrameSamples; i++ {
		var s complex64
		if i < len(samples) {
			s = samples[i]
		}
		dst = append(dst, nibble(real(s))<<4|nibble(imag(s)))
	}
	return dst
}

// ID packs beam, tuning and polarization into a frame ID byte.
func ID(beam, tuning, pol int) byte {
	return byte(beam&0x07) | byte(tuning&0x07)<<3 | byte(pol&0x01)<<7
}

func nibble(v float32) byte {
	n := int8(v)
	switch {
	case v > 7:
		n = 7
	case v < -8:
		n = -8
	}
	return byte(n) & 0x0f
}
