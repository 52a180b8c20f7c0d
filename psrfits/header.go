package psrfits

import (
	"fmt"
	"math"
	"time"

	"github.com/lestrrat-go/strftime"
)

const (
	unixMJD  = 40587.0
	dayTicks = 86400.0
)

// Header is the part of an output file fixed at creation.
type Header struct {
	// Basename is the output path without file number and extension.
	Basename string
	Beam     int
	Tuning   int

	Source string
	RA     string
	Dec    string
	// RADeg and DecDeg are the coordinates in degrees.
	RADeg  float64
	DecDeg float64

	// CenterFreq and Bandwidth are in MHz.
	CenterFreq float64
	Bandwidth  float64
	Channels   int
	// SampleTime is the duration of one spectrum in seconds.
	SampleTime float64
	// NumSpectra is the number of spectra per row.
	NumSpectra int
	Bits       int
	Pols       int
	PolOrder   string
	PolType    string

	// Start is the time of the first spectrum of the first row.
	Start       time.Time
	RowsPerFile int

	Observer  string
	Telescope string
	Frontend  string
	Backend   string
	Project   string
}

// Validate checks the header for consistency.
func (h Header) Validate() error {
	switch {
	case h.Basename == "":
		return fmt.Errorf("empty basename")
	case h.Channels < 2:
		return fmt.Errorf("invalid number of channels: %d", h.Channels)
	case h.NumSpectra < 1:
		return fmt.Errorf("invalid number of spectra per row: %d", h.NumSpectra)
	case h.Bits != 4 && h.Bits != 8:
		return fmt.Errorf("invalid number of bits: %d", h.Bits)
	case h.NumSpectra*h.Bits%8 != 0:
		return fmt.Errorf("%d-bit rows of %d spectra do not fill whole bytes", h.Bits, h.NumSpectra)
	case h.Pols < 1:
		return fmt.Errorf("invalid number of polarizations: %d", h.Pols)
	case h.RowsPerFile < 1:
		return fmt.Errorf("invalid number of rows per file: %d", h.RowsPerFile)
	case h.SampleTime <= 0:
		return fmt.Errorf("invalid sample time: %v", h.SampleTime)
	}
	return nil
}

// SubintDuration returns the time covered by one row in seconds.
func (h Header) SubintDuration() float64 {
	return h.SampleTime * float64(h.NumSpectra)
}

// ChannelWidth returns the channel spacing in MHz.
func (h Header) ChannelWidth() float64 {
	return h.Bandwidth / float64(h.Channels)
}

// MJD returns the start epoch as a fractional Modified Julian Day.
func (h Header) MJD() float64 {
	return float64(h.Start.UnixNano())/1e9/dayTicks + unixMJD
}

// epoch splits the start time into integer day, integer second of day and
// fractional second.
func (h Header) epoch() (imjd, smjd int, offs float64) {
	t := h.Start.UTC()
	unix := t.Unix()
	days := int64(math.Floor(float64(unix) / dayTicks))
	imjd = int(days) + int(unixMJD)
	smjd = int(unix - days*dayTicks)
	offs = float64(t.Nanosecond()) / 1e9
	return
}

// Freqs returns the channel center frequencies in MHz in FFT-shifted
// order, lowest first.
func (h Header) Freqs() []float64 {
	freqs := make([]float64, h.Channels)
	df := h.ChannelWidth()
	for c := range freqs {
		freqs[c] = h.CenterFreq + float64(c-h.Channels/2)*df
	}
	return freqs
}

// rowBytes returns the size of one SUBINT row.
func (h Header) rowBytes() int {
	n := h.Channels * h.Pols
	return 4*8 + h.Channels*8 + h.Channels*4 + 2*n*4 + h.dataBytes()
}

// dataBytes returns the size of the DATA column. 4-bit samples are packed
// two per byte along the spectrum axis.
func (h Header) dataBytes() int {
	return h.Channels * h.Pols * h.NumSpectra * h.Bits / 8
}

// primary renders the primary HDU header.
func (h Header) primary() (header, error) {
	dateObs, err := strftime.Format("%Y-%m-%dT%H:%M:%S", h.Start.UTC())
	if err != nil {
		return nil, err
	}
	imjd, smjd, offs := h.epoch()
	var p header
	p.add("SIMPLE", true, "file conforms to FITS standard")
	p.add("BITPIX", 8, "number of bits per data pixel")
	p.add("NAXIS", 0, "number of data axes")
	p.add("EXTEND", true, "FITS dataset may contain extensions")
	p.add("HDRVER", "5.4", "header version")
	p.add("FITSTYPE", "PSRFITS", "FITS definition for pulsar data files")
	p.add("OBSERVER", h.Observer, "observer(s)")
	p.add("PROJID", h.Project, "project name")
	p.add("TELESCOP", h.Telescope, "telescope name")
	p.add("FRONTEND", h.Frontend, "receiver ID")
	p.add("BACKEND", h.Backend, "backend ID")
	p.add("OBS_MODE", "SEARCH", "(PSR, CAL, SEARCH)")
	p.add("SRC_NAME", h.Source, "source or scan ID")
	p.add("RA", h.RA, "right ascension (hh:mm:ss.ssss)")
	p.add("DEC", h.Dec, "declination (-dd:mm:ss.sss)")
	p.add("EQUINOX", 2000.0, "equinox of coords")
	p.add("OBSFREQ", h.CenterFreq, "[MHz] centre frequency")
	p.add("OBSBW", h.Bandwidth, "[MHz] bandwidth")
	p.add("OBSNCHAN", h.Channels, "number of frequency channels")
	p.add("FD_POLN", h.PolType, "LIN or CIRC")
	p.add("FD_HAND", 1, "+/- 1. +1 is LIN:A=X,B=Y, CIRC:A=L,B=R")
	p.add("DATE-OBS", dateObs, "UTC date of observation")
	p.add("STT_IMJD", imjd, "start MJD (UTC days)")
	p.add("STT_SMJD", smjd, "[s] start time (sec past UTC 00h)")
	p.add("STT_OFFS", offs, "[s] start time offset")
	return p, nil
}

// subint renders the SUBINT binary table header for a file starting at
// row offset.
func (h Header) subint(offset int) header {
	n := h.Channels * h.Pols
	var s header
	s.add("XTENSION", "BINTABLE", "binary table extension")
	s.add("BITPIX", 8, "8-bit bytes")
	s.add("NAXIS", 2, "2-dimensional binary table")
	s.add("NAXIS1", h.rowBytes(), "width of table in bytes")
	s.add("NAXIS2", 0, "number of rows")
	s.add("PCOUNT", 0, "size of special data area")
	s.add("GCOUNT", 1, "one data group")
	s.add("TFIELDS", 9, "number of fields per row")
	s.add("EXTNAME", "SUBINT", "name of this binary table extension")
	s.add("TBIN", h.SampleTime, "[s] time per bin or sample")
	s.add("NPOL", h.Pols, "nr of polarisations")
	s.add("POL_TYPE", h.PolOrder, "polarisation identifier")
	s.add("NBIN", 1, "nr of bins (search mode: 1)")
	s.add("NBITS", h.Bits, "nr of bits/datum")
	s.add("NCHAN", h.Channels, "nr of channels")
	s.add("CHAN_BW", h.ChannelWidth(), "[MHz] channel bandwidth")
	s.add("NCHNOFFS", 0, "channel/sub-band offset for split files")
	s.add("NSBLK", h.NumSpectra, "samples/row")
	s.add("NSUBOFFS", offset, "subint offset")
	s.add("ZERO_OFF", 0.0, "zero offset for SEARCH-mode raw data")
	s.add("SIGNINT", 0, "1 for signed ints in SEARCH-mode data")
	columns := []struct {
		name, form, unit, dim string
	}{
		{"TSUBINT", "1D", "s", ""},
		{"OFFS_SUB", "1D", "s", ""},
		{"RA_SUB", "1D", "deg", ""},
		{"DEC_SUB", "1D", "deg", ""},
		{"DAT_FREQ", fmt.Sprintf("%dD", h.Channels), "MHz", ""},
		{"DAT_WTS", fmt.Sprintf("%dE", h.Channels), "", ""},
		{"DAT_OFFS", fmt.Sprintf("%dE", n), "", ""},
		{"DAT_SCL", fmt.Sprintf("%dE", n), "", ""},
		{"DATA", fmt.Sprintf("%dB", h.dataBytes()), "Jy", fmt.Sprintf("(1,%d,%d,%d)", h.Channels, h.Pols, h.NumSpectra*h.Bits/8)},
	}
	for i, c := range columns {
		k := i + 1
		s.add(fmt.Sprintf("TTYPE%d", k), c.name, "")
		s.add(fmt.Sprintf("TFORM%d", k), c.form, "")
		if c.unit != "" {
			s.add(fmt.Sprintf("TUNIT%d", k), c.unit, "")
		}
		if c.dim != "" {
			s.add(fmt.Sprintf("TDIM%d", k), c.dim, "")
		}
	}
	return s
}
