package psrpipe

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned when the run parameters are inconsistent. It is
	// always reported before any output is created.
	ErrConfig = errors.New("configuration error")
	// ErrAlignment is returned when inputs cannot be aligned to a common epoch.
	ErrAlignment = errors.New("alignment error")
)

// RunError is returned if processing of an input was started, but
// execution and/or close failed.
type RunError struct {
	File     string
	ErrExec  error
	ErrClose error
}

func (e *RunError) Error() string {
	switch {
	case e.ErrExec != nil && e.ErrClose != nil:
		return fmt.Sprintf("%s: close error: %v after execute error: %v", e.File, e.ErrClose, e.ErrExec)
	case e.ErrExec != nil:
		return fmt.Sprintf("%s: execute error: %v", e.File, e.ErrExec)
	case e.ErrClose != nil:
		return fmt.Sprintf("%s: close error: %v", e.File, e.ErrClose)
	}
	return ""
}

// Is checks if any of errors match provided sentinel error.
func (e *RunError) Is(err error) bool {
	if e.ErrExec != nil && errors.Is(e.ErrExec, err) {
		return true
	}
	if e.ErrClose != nil && errors.Is(e.ErrClose, err) {
		return true
	}
	return false
}

// Ret returns untyped nil if no error happened.
func (e *RunError) Ret() error {
	if e.ErrExec == nil && e.ErrClose == nil {
		return nil
	}
	return e
}
