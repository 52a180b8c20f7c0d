// Command drx2psrfits converts simultaneously recorded DRX files into
// PSRFITS search-mode files, one set per beam and tuning.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/pipelined/psrpipe"
	"github.com/pipelined/psrpipe/catalog"
	"github.com/pipelined/psrpipe/config"
	"github.com/pipelined/psrpipe/log"
	"github.com/pipelined/psrpipe/pipe"
)

var (
	successExitCode = 0
	errorExitCode   = 1
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr, log.GetLogger()))
}

type flags struct {
	*pflag.FlagSet
	output      string
	nchan       int
	nsblk       int
	noSK        bool
	noSumming   bool
	circularize bool
	stokes      bool
	source      string
	ra          string
	dec         string
	fourBit     bool
	subsample   bool
	queueDepth  int
	rowsPerFile int
	config      string
	catalog     string
}

func newFlags(stderr io.Writer) *flags {
	d := config.Default()
	f := flags{FlagSet: pflag.NewFlagSet("drx2psrfits", pflag.ContinueOnError)}
	f.SetOutput(stderr)
	f.StringVarP(&f.output, "output", "o", "", "Output file basename")
	f.IntVarP(&f.nchan, "nchan", "c", d.Channels, "Set FFT length")
	f.IntVarP(&f.nsblk, "nsblk", "b", d.Subint, "Set spectra per sub-block")
	f.BoolVarP(&f.noSK, "no-sk-flagging", "p", false, "Disable on-the-fly SK flagging of RFI")
	f.BoolVarP(&f.noSumming, "no-summing", "n", false, "Do not sum polarizations")
	f.BoolVarP(&f.circularize, "circularize", "i", false, "Convert data to RR/LL")
	f.BoolVarP(&f.stokes, "stokes", "k", false, "Convert data to full Stokes")
	f.StringVarP(&f.source, "source", "s", d.Source, "Source name")
	f.StringVarP(&f.ra, "ra", "r", d.RA, "Right Ascension (HH:MM:SS.SS, J2000)")
	f.StringVarP(&f.dec, "dec", "d", d.Dec, "Declination (sDD:MM:SS.S, J2000)")
	f.BoolVarP(&f.fourBit, "4bit-data", "4", false, "Save the spectra in 4-bit mode instead of 8-bit mode")
	f.BoolVarP(&f.subsample, "subsample-correction", "t", false, "Enable sub-sample delay correction")
	f.IntVarP(&f.queueDepth, "queue-depth", "q", d.QueueDepth, "Reader queue depth")
	f.IntVar(&f.rowsPerFile, "rows-per-file", d.RowsPerFile, "Sub-integrations per output file")
	f.StringVar(&f.config, "config", "", "YAML configuration file, flags take precedence")
	f.StringVar(&f.catalog, "catalog", "", "SQLite database recording the output files")
	f.Usage = func() {
		fmt.Fprintf(stderr, "Usage: drx2psrfits [OPTIONS] DM file [file...]\n\nOptions:\n")
		f.PrintDefaults()
	}
	return &f
}

// apply overrides cfg with the flags set on the command line.
func (f *flags) apply(cfg *config.Config) {
	set := func(name string, fn func()) {
		if f.Changed(name) {
			fn()
		}
	}
	set("output", func() { cfg.Output = f.output })
	set("nchan", func() { cfg.Channels = f.nchan })
	set("nsblk", func() { cfg.Subint = f.nsblk })
	set("no-sk-flagging", func() { cfg.SKFlagging = !f.noSK })
	set("no-summing", func() { cfg.SumPols = !f.noSumming })
	set("circularize", func() { cfg.Circularize = f.circularize })
	set("stokes", func() { cfg.Stokes = f.stokes })
	set("source", func() { cfg.Source = f.source })
	set("ra", func() { cfg.RA = f.ra })
	set("dec", func() { cfg.Dec = f.dec })
	set("4bit-data", func() {
		if f.fourBit {
			cfg.Bits = 4
		}
	})
	set("subsample-correction", func() { cfg.SubSample = f.subsample })
	set("queue-depth", func() { cfg.QueueDepth = f.queueDepth })
	set("rows-per-file", func() { cfg.RowsPerFile = f.rowsPerFile })
	set("catalog", func() { cfg.Catalog = f.catalog })
}

func run(ctx context.Context, args []string, stderr io.Writer, l *logrus.Logger) int {
	f := newFlags(stderr)
	if err := f.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return successExitCode
		}
		return errorExitCode
	}
	if f.NArg() < 2 {
		f.Usage()
		return errorExitCode
	}
	if err := convert(ctx, f, l); err != nil {
		l.WithError(err).Error("conversion failed")
		return errorExitCode
	}
	return successExitCode
}

func convert(ctx context.Context, f *flags, l *logrus.Logger) error {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return err
		}
	}
	f.apply(&cfg)
	dm, err := strconv.ParseFloat(f.Arg(0), 64)
	if err != nil {
		return fmt.Errorf("%w: invalid DM %q", psrpipe.ErrConfig, f.Arg(0))
	}
	cfg.DM = dm

	options := []pipe.Option{pipe.WithLogger(l)}
	if cfg.Catalog != "" {
		cat, err := catalog.Open(cfg.Catalog)
		if err != nil {
			return err
		}
		defer cat.Close()
		options = append(options, pipe.WithRecorder(cat))
	}
	p, err := pipe.New(cfg, options...)
	if err != nil {
		return err
	}
	l.WithFields(logrus.Fields{
		"run":      p.ID(),
		"dm":       cfg.DM,
		"nchan":    cfg.Channels,
		"nsblk":    cfg.Subint,
		"pol":      p.Mode().Label(),
		"bits":     cfg.Bits,
		"sk":       cfg.SKFlagging,
		"inputs":   f.NArg() - 1,
		"basename": cfg.Output,
	}).Info("starting conversion")
	if err := p.Run(ctx, f.Args()[1:]); err != nil {
		return err
	}
	for _, fi := range p.Files() {
		l.WithFields(logrus.Fields{"rows": fi.Rows, "tuning": fi.Tuning}).Infof("wrote %s", fi.Path)
	}
	return nil
}
