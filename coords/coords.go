// Package coords parses J2000 sexagesimal coordinates.
package coords

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/geo/s1"
)

const (
	// DefaultRA is used when no right ascension is provided.
	DefaultRA = "00:00:00.00"
	// DefaultDec is used when no declination is provided.
	DefaultDec = "+00:00:00.0"
)

// ParseRA parses a right ascension in HH:MM:SS.SS form.
func ParseRA(s string) (s1.Angle, error) {
	h, m, sec, neg, err := split(s)
	if err != nil {
		return 0, fmt.Errorf("invalid right ascension %q: %w", s, err)
	}
	if neg || h >= 24 {
		return 0, fmt.Errorf("invalid right ascension %q: out of range", s)
	}
	hours := h + m/60 + sec/3600
	return s1.Angle(hours*15) * s1.Degree, nil
}

// ParseDec parses a declination in sDD:MM:SS.S form.
func ParseDec(s string) (s1.Angle, error) {
	d, m, sec, neg, err := split(s)
	if err != nil {
		return 0, fmt.Errorf("invalid declination %q: %w", s, err)
	}
	deg := d + m/60 + sec/3600
	if deg > 90 {
		return 0, fmt.Errorf("invalid declination %q: out of range", s)
	}
	if neg {
		deg = -deg
	}
	return s1.Angle(deg) * s1.Degree, nil
}

// split returns the three sexagesimal fields and the sign.
func split(s string) (a, b, c float64, neg bool, err error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, false, fmt.Errorf("expected three fields, got %d", len(parts))
	}
	var v [3]float64
	for i, p := range parts {
		if v[i], err = strconv.ParseFloat(p, 64); err != nil {
			return 0, 0, 0, false, err
		}
		if v[i] < 0 || (i > 0 && v[i] >= 60) {
			return 0, 0, 0, false, fmt.Errorf("field %q out of range", p)
		}
	}
	return v[0], v[1], v[2], neg, nil
}
