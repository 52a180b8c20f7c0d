package psrfits

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCard(t *testing.T) {
	tests := []struct {
		card card
		want string
	}{
		{
			card: card{key: "RA", value: "19:21:44.8150", comment: "right ascension"},
			want: "RA      = '19:21:44.8150'      / right ascension",
		},
		{
			card: card{key: "FD_POLN", value: "LIN"},
			want: "FD_POLN = 'LIN     '",
		},
		{
			card: card{key: "OBSERVER", value: "O'Neil"},
			want: "OBSERVER= 'O''Neil '",
		},
		{
			card: card{key: "TBIN", value: 512 / 19.6e6, comment: "[s] time per bin or sample"},
			want: "TBIN    =  2.6122448979592E-05 / [s] time per bin or sample",
		},
		{
			card: card{key: "OBSFREQ", value: 74.0},
			want: "OBSFREQ =                  74.",
		},
		{
			card: card{key: "NAXIS2", value: 12, comment: "number of rows"},
			want: "NAXIS2  =                   12 / number of rows",
		},
		{
			card: card{key: "EXTEND", value: true},
			want: "EXTEND  =                    T",
		},
	}
	for _, test := range tests {
		got := test.card.String()
		assert.Len(t, got, cardSize, test.card.key)
		assert.Equal(t, test.want, strings.TrimRight(got, " "), test.card.key)
	}
}

func TestCardLongString(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := card{key: "SRC_NAME", value: long, comment: "source"}.String()
	assert.Len(t, got, cardSize)
	assert.Equal(t, "SRC_NAME= '"+strings.Repeat("x", maxString)+"'", got)

	// an escaped quote is never split
	quoted := strings.Repeat("x", maxString-1) + "'"
	got = card{key: "SRC_NAME", value: quoted}.String()
	assert.Len(t, got, cardSize)
	assert.Equal(t, "SRC_NAME= '"+strings.Repeat("x", maxString-1)+"' ", got)
}
