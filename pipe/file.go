package pipe

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/align"
	"github.com/pipelined/psrpipe/channelize"
	"github.com/pipelined/psrpipe/dedisperse"
	"github.com/pipelined/psrpipe/internal/queue"
	"github.com/pipelined/psrpipe/metric"
	"github.com/pipelined/psrpipe/polarization"
	"github.com/pipelined/psrpipe/psrfits"
	"github.com/pipelined/psrpipe/quantize"
	"github.com/pipelined/psrpipe/rfi"
	"github.com/pipelined/psrpipe/window"
)

// file is the processing context of one input. It owns the queue between
// its reader and its consumer, so nothing is shared across inputs.
type file struct {
	*Pipe
	id      string
	path    string
	base    string
	info    psrpipe.Info
	offset  align.Offset
	subints int64
	log     logrus.FieldLogger

	q       *queue.Queue
	writers [psrpipe.NumTunings]*psrfits.Writer
	files   []psrfits.FileInfo

	// consumer state
	channelizer psrpipe.Channelizer
	rotator     psrpipe.PhaseRotator
	window      *window.Window
	weights     *rfi.Bookkeeper
	reducer     *polarization.Reducer
	adapter     *quantize.Adapter
	flagged     [psrpipe.NumTunings]float64
	rows        int
}

func (p *Pipe) newFile(path, base string, info psrpipe.Info, o align.Offset, subints int64) *file {
	id := newUID()
	return &file{
		Pipe:    p,
		id:      id,
		path:    path,
		base:    base,
		info:    info,
		offset:  o,
		subints: subints,
		log: p.log.WithFields(logrus.Fields{
			"ctx":  id,
			"file": path,
			"beam": info.Beam,
		}),
	}
}

// process converts the input. The reader goroutine is always joined before
// process returns.
func (f *file) process(ctx context.Context) error {
	if err := f.setup(); err != nil {
		return &psrpipe.RunError{File: f.path, ErrExec: err}
	}
	src, err := f.open(f.path)
	if err != nil {
		return &psrpipe.RunError{File: f.path, ErrExec: err}
	}
	e := psrpipe.RunError{File: f.path}
	e.ErrExec = f.run(ctx, src)
	if err := src.Close(); err != nil {
		e.ErrClose = err
	}
	if err := f.closeWriters(); err != nil {
		e.ErrClose = errors.Join(e.ErrClose, err)
	}
	f.log.WithFields(logrus.Fields{
		"rows":      f.rows,
		"flagged_1": f.meanFlagged(0),
		"flagged_2": f.meanFlagged(1),
	}).Info("done")
	return e.Ret()
}

// setup allocates the consumer state. Nothing is written yet.
func (f *file) setup() error {
	adapter, err := quantize.New(f.cfg.Bits)
	if err != nil {
		return err
	}
	f.adapter = adapter
	f.reducer = polarization.NewReducer(f.mode)

	f.channelizer = f.Pipe.channelizer
	if f.channelizer == nil {
		f.channelizer = channelize.New()
	}
	d := f.Pipe.dedisperser
	if d == nil {
		d = dedisperse.New(f.cfg.DM, f.info.SampleRate, f.info.Freq, f.cfg.Channels)
	}
	f.window = window.New(d)
	if f.offset.Tick != 0 {
		f.rotator = dedisperse.NewRotator(f.info.SampleRate, f.info.Freq, f.cfg.Channels)
	}

	m := f.masker
	if m == nil && f.cfg.SKFlagging {
		m = rfi.NewSpectralKurtosis(f.cfg.SKSigma, f.cfg.Subint)
	}
	f.weights = rfi.New(m)
	return nil
}

// run creates the outputs and runs the reader and the consumer.
func (f *file) run(ctx context.Context, src psrpipe.Source) error {
	if err := src.Seek(f.offset.Frame); err != nil {
		return fmt.Errorf("seek %d frames: %w", f.offset.Frame, err)
	}
	start := f.epoch(f.info, f.offset)
	for t := range f.writers {
		w, err := psrfits.Create(f.header(f.base, f.info, t, start), psrfits.WithOnClose(f.onClose(ctx)))
		if err != nil {
			return err
		}
		f.writers[t] = w
		f.log.WithField("tuning", t+1).Infof("writing %s", w.Path())
	}

	f.q = queue.New(f.cfg.QueueDepth, f.cfg.Poll)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.read(gctx, src)
	})
	g.Go(func() error {
		return f.consume(gctx)
	})
	return g.Wait()
}

// read is the producer. Read failures end the stream early instead of
// failing the run.
func (f *file) read(ctx context.Context, src psrpipe.Source) error {
	defer f.q.Close()
	samples := f.cfg.ChunkSamples()
	sh, err := newShifter(src, f.offset.Sample, f.info.TicksPerSample())
	if err != nil {
		f.endOfStream(err, 0)
		return nil
	}
	measure := metric.Meter("reader", f.info.SampleRate)()
	var seq int64
	for {
		c, err := sh.read(samples)
		if err != nil {
			f.endOfStream(err, seq)
			return nil
		}
		seq++
		c.Seq = seq
		measure(int64(c.Size()))
		if err := f.q.Push(ctx, c); err != nil {
			return err
		}
	}
}

func (f *file) endOfStream(err error, seq int64) {
	if errors.Is(err, psrpipe.ErrEndOfStream) {
		f.log.Debugf("end of stream after %d chunks", seq)
		return
	}
	f.log.WithError(err).Warnf("read failed after %d chunks, treating as end of stream", seq)
}

// consume is the compute loop. Chunks beyond the usable sub-integration
// count are drained without processing.
func (f *file) consume(ctx context.Context) error {
	measure := metric.Meter("writer", f.info.SampleRate)()
	for {
		c, err := f.q.Pop(ctx)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		if c.Seq > f.subints {
			continue
		}
		written, err := f.processChunk(c)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", c.Seq, err)
		}
		if written {
			measure(int64(c.Size()))
		}
	}
}

// processChunk pushes one chunk through the window and writes a row for
// the block it completes.
func (f *file) processChunk(c *psrpipe.Chunk) (bool, error) {
	spectra, err := f.channelizer.Channelize(c, f.cfg.Channels, f.window.Next())
	if err != nil {
		return false, err
	}
	if !f.window.Push(spectra) {
		return false, nil
	}
	cur := f.window.Current()
	if f.rotator != nil {
		f.rotator.Rotate(cur, float64(f.offset.Tick)/psrpipe.ClockRate)
	}
	weights := f.weights.Weights(cur)
	out, err := f.window.Dedisperse()
	if err != nil {
		return false, err
	}
	rows, err := f.adapter.Quantize(f.reducer.Reduce(out))
	if err != nil {
		return false, err
	}
	for t, w := range f.writers {
		if err := w.Write(rows[t], weights.Tuning[t]); err != nil {
			return false, fmt.Errorf("tuning %d: %w", t+1, err)
		}
		f.flagged[t] += weights.Flagged[t]
	}
	f.rows++
	f.log.WithFields(logrus.Fields{
		"row":       f.rows,
		"flagged_1": weights.Flagged[0],
		"flagged_2": weights.Flagged[1],
	}).Debug("row written")
	return true, nil
}

func (f *file) meanFlagged(t int) float64 {
	if f.rows == 0 {
		return 0
	}
	return f.flagged[t] / float64(f.rows)
}

func (f *file) onClose(ctx context.Context) func(psrfits.FileInfo) error {
	return func(fi psrfits.FileInfo) error {
		f.files = append(f.files, fi)
		f.log.WithFields(logrus.Fields{
			"tuning": fi.Tuning,
			"rows":   fi.Rows,
		}).Infof("closed %s", fi.Path)
		if f.recorder == nil {
			return nil
		}
		if err := f.recorder.Record(context.WithoutCancel(ctx), f.Pipe.id, fi); err != nil {
			return fmt.Errorf("record %s: %w", fi.Path, err)
		}
		return nil
	}
}

func (f *file) closeWriters() error {
	var errs []error
	for _, w := range f.writers {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
