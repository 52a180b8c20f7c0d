// Package psrfits writes PSRFITS search-mode files, rolling over to a new
// file every RowsPerFile rows.
package psrfits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/pipelined/psrpipe"
)

// State is the lifecycle state of a writer.
type State int

const (
	// Created means the first file exists with its header and no rows.
	Created State = iota
	// Writing means rows are being appended to the current file.
	Writing
	// RolledOver means a new file was opened and has no rows yet.
	RolledOver
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Writing:
		return "writing"
	case RolledOver:
		return "rolled over"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// ErrClosed is returned when writing into a closed writer.
var ErrClosed = errors.New("writer is closed")

// FileInfo describes a completed output file.
type FileInfo struct {
	Path     string
	Beam     int
	Tuning   int
	Num      int
	Rows     int
	MJD      float64
	Source   string
	PolOrder string
}

// Option configures a writer.
type Option func(*Writer)

// WithOnClose sets a function called after every output file is completed.
func WithOnClose(fn func(FileInfo) error) Option {
	return func(w *Writer) {
		w.onClose = fn
	}
}

// Writer owns the output files of one beam and tuning.
type Writer struct {
	hdr     Header
	freqs   []float64
	primary []byte

	file   *os.File
	path   string
	num    int
	rows   int
	total  int
	state  State
	naxis2 int64
	row    []byte
	files  []FileInfo

	onClose func(FileInfo) error
}

// Create validates the header and creates the first output file.
func Create(h Header, options ...Option) (*Writer, error) {
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", psrpipe.ErrConfig, err)
	}
	p, err := h.primary()
	if err != nil {
		return nil, err
	}
	primary, _ := p.encode()
	w := &Writer{
		hdr:     h,
		freqs:   h.Freqs(),
		primary: primary,
		row:     make([]byte, h.rowBytes()),
	}
	for _, option := range options {
		option(w)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.state = Created
	return w, nil
}

// Header returns the header template.
func (w *Writer) Header() Header {
	return w.hdr
}

// State returns the lifecycle state.
func (w *Writer) State() State {
	return w.state
}

// Rows returns the number of rows written across all files.
func (w *Writer) Rows() int {
	return w.total
}

// Files returns completed files.
func (w *Writer) Files() []FileInfo {
	return w.files
}

// Path returns the path of the current file.
func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) open() error {
	w.num++
	w.path = fmt.Sprintf("%s_%04d.fits", w.hdr.Basename, w.num)
	f, err := os.Create(w.path)
	if err != nil {
		return err
	}
	sub, offsets := w.hdr.subint(w.total).encode()
	if _, err := f.Write(w.primary); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(sub); err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.rows = 0
	w.naxis2 = int64(len(w.primary)) + offsets["NAXIS2"]
	return nil
}

// closeFile pads the current file to whole blocks and closes it.
func (w *Writer) closeFile() error {
	size := int64(w.rows) * int64(len(w.row))
	var err error
	if r := size % blockSize; r != 0 {
		_, err = w.file.Write(make([]byte, blockSize-r))
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	info := FileInfo{
		Path:     w.path,
		Beam:     w.hdr.Beam,
		Tuning:   w.hdr.Tuning,
		Num:      w.num,
		Rows:     w.rows,
		MJD:      w.hdr.MJD(),
		Source:   w.hdr.Source,
		PolOrder: w.hdr.PolOrder,
	}
	w.files = append(w.files, info)
	if w.onClose != nil {
		return w.onClose(info)
	}
	return nil
}

// Write appends one row. The offset of the row is the midpoint of its
// time span counted from the start of the observation.
func (w *Writer) Write(q *psrpipe.Quantized, weights []float32) error {
	if w.state == Closed {
		return ErrClosed
	}
	h := w.hdr
	if q.Channels != h.Channels || q.Pols != h.Pols || q.Length != h.NumSpectra || len(q.Data) != h.dataBytes() {
		return fmt.Errorf("row shape %dx%dx%d does not match header %dx%dx%d",
			q.Pols, q.Channels, q.Length, h.Pols, h.Channels, h.NumSpectra)
	}
	if len(weights) != h.Channels {
		return fmt.Errorf("got %d weights for %d channels", len(weights), h.Channels)
	}
	if w.rows == h.RowsPerFile {
		if err := w.closeFile(); err != nil {
			return err
		}
		if err := w.open(); err != nil {
			return err
		}
		w.state = RolledOver
	}

	tsubint := h.SubintDuration()
	b := w.row
	n := 0
	putFloat64 := func(v float64) {
		binary.BigEndian.PutUint64(b[n:], math.Float64bits(v))
		n += 8
	}
	putFloat32s := func(vs []float32) {
		for _, v := range vs {
			binary.BigEndian.PutUint32(b[n:], math.Float32bits(v))
			n += 4
		}
	}
	putFloat64(tsubint)
	putFloat64(float64(w.total)*tsubint + tsubint/2)
	putFloat64(h.RADeg)
	putFloat64(h.DecDeg)
	for _, f := range w.freqs {
		putFloat64(f)
	}
	putFloat32s(weights)
	putFloat32s(q.Offsets)
	putFloat32s(q.Scales)
	copy(b[n:], q.Data)

	if _, err := w.file.Write(b); err != nil {
		return err
	}
	w.rows++
	w.total++
	w.state = Writing
	// keep the row count current so an interrupted run leaves a readable file
	_, err := w.file.WriteAt([]byte(card{key: "NAXIS2", value: w.rows, comment: "number of rows"}.String()), w.naxis2)
	return err
}

// Close completes the current file.
func (w *Writer) Close() error {
	if w.state == Closed {
		return nil
	}
	w.state = Closed
	return w.closeFile()
}
