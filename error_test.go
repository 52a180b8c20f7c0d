package psrpipe_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/psrpipe"
)

func TestRunError(t *testing.T) {
	errExec := errors.New("exec")
	errClose := errors.New("close")
	tests := []struct {
		err     psrpipe.RunError
		message string
		is      []error
	}{
		{
			err:     psrpipe.RunError{File: "a.drx", ErrExec: errExec},
			message: "a.drx: execute error: exec",
			is:      []error{errExec},
		},
		{
			err:     psrpipe.RunError{File: "a.drx", ErrClose: errClose},
			message: "a.drx: close error: close",
			is:      []error{errClose},
		},
		{
			err:     psrpipe.RunError{File: "a.drx", ErrExec: errExec, ErrClose: errClose},
			message: "a.drx: close error: close after execute error: exec",
			is:      []error{errExec, errClose},
		},
	}
	for _, test := range tests {
		err := test.err.Ret()
		assert.EqualError(t, err, test.message)
		for _, target := range test.is {
			assert.ErrorIs(t, err, target)
		}
		assert.NotErrorIs(t, err, io.EOF)
	}
	assert.Nil(t, (&psrpipe.RunError{File: "a.drx"}).Ret())
}

func TestShapes(t *testing.T) {
	s := psrpipe.NewSpectra(psrpipe.NumStreams, 8, 3)
	assert.Equal(t, psrpipe.NumStreams, s.Streams())
	assert.True(t, s.Fits(psrpipe.NumStreams, 8, 3))
	assert.False(t, s.Fits(psrpipe.NumStreams, 8, 4))
	s.Data[1][2][0] = 1
	s.Zero()
	assert.Equal(t, complex64(0), s.Data[1][2][0])

	var nilSpectra *psrpipe.Spectra
	assert.False(t, nilSpectra.Fits(1, 1, 1))

	r := psrpipe.NewReduced(4, 8, 3)
	assert.Len(t, r.Data, 2*4)
	assert.True(t, r.Fits(4, 8, 3))

	c := &psrpipe.Chunk{Samples: [][]complex64{make([]complex64, 5)}}
	assert.Equal(t, 5, c.Size())
	assert.Equal(t, 0, (*psrpipe.Chunk)(nil).Size())
	assert.Equal(t, int64(10), psrpipe.Info{SampleRate: 19.6e6}.TicksPerSample())
}
