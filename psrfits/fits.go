package psrfits

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	cardSize  = 80
	blockSize = 2880
	// maxString is the longest string value which fits a card.
	maxString = 68
)

// card is one header record.
type card struct {
	key     string
	value   interface{}
	comment string
}

// header is an ordered list of cards.
type header []card

func (h *header) add(key string, value interface{}, comment string) {
	*h = append(*h, card{key: key, value: value, comment: comment})
}

// encode renders the header padded to whole blocks. It also returns the
// byte offset of every card.
func (h header) encode() ([]byte, map[string]int64) {
	var b bytes.Buffer
	offsets := make(map[string]int64, len(h))
	for _, c := range h {
		offsets[c.key] = int64(b.Len())
		b.WriteString(c.String())
	}
	b.WriteString(pad("END", cardSize))
	if r := b.Len() % blockSize; r != 0 {
		b.WriteString(strings.Repeat(" ", blockSize-r))
	}
	return b.Bytes(), offsets
}

// String formats a fixed-format card.
func (c card) String() string {
	var v string
	switch val := c.value.(type) {
	case string:
		val = strings.ReplaceAll(val, "'", "''")
		if len(val) > maxString {
			val = val[:maxString]
			// do not split an escaped quote
			if n := len(val) - len(strings.TrimRight(val, "'")); n%2 == 1 {
				val = val[:len(val)-1]
			}
		}
		v = pad("'"+pad(val, 8)+"'", 20)
	case bool:
		if val {
			v = fmt.Sprintf("%20s", "T")
		} else {
			v = fmt.Sprintf("%20s", "F")
		}
	case int:
		v = fmt.Sprintf("%20d", val)
	case int64:
		v = fmt.Sprintf("%20d", val)
	case float64:
		v = fmt.Sprintf("%20.14G", val)
		if !strings.ContainsAny(v, ".E") {
			v = fmt.Sprintf("%20s", strings.TrimSpace(v)+".")
		}
	default:
		v = fmt.Sprintf("%20v", val)
	}
	s := pad(c.key, 8) + "= " + v
	if c.comment != "" && len(s)+3 < cardSize {
		s += " / " + c.comment
	}
	if len(s) > cardSize {
		// only the comment can overflow
		s = s[:cardSize]
	}
	return pad(s, cardSize)
}

// pad pads s with spaces to at least n characters.
func pad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
