package adrv9002

import (
	"errors"
	"fmt"
	"path"
	"runtime"

	"github.com/rjboer/adrv9002/internal/logging"
)

var (
	// ErrBus marks a failed register or device transaction.
	ErrBus = errors.New("adrv9002: bus i/o failed")
	// ErrInvalidState is returned when the channel state does not permit
	// the requested operation.
	ErrInvalidState = errors.New("adrv9002: invalid channel state")
	// ErrInvalidChannel is returned for a channel index out of range.
	ErrInvalidChannel = errors.New("adrv9002: invalid channel")
	// ErrNoValidRegion is returned when no delay pair passed the test pattern.
	ErrNoValidRegion = errors.New("adrv9002: no valid delay region found")
)

// busErr wraps a device failure with ErrBus while keeping the cause
// reachable through errors.Is.
func busErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBus, err)
}

// DevError records where a device failure surfaced.
type DevError struct {
	Func string
	Line int
	Err  error
}

func (e *DevError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Func, e.Line, e.Err)
}

func (e *DevError) Unwrap() error { return e.Err }

// DevErr tags err with the calling function and line, logs it and returns
// the tagged error. A nil err stays nil.
func (p *Phy) DevErr(err error) error {
	if err == nil {
		return nil
	}
	var de *DevError
	if errors.As(err, &de) {
		return err
	}
	fn, line := "unknown", 0
	if pc, _, l, ok := runtime.Caller(1); ok {
		line = l
		if f := runtime.FuncForPC(pc); f != nil {
			fn = path.Base(f.Name())
		}
	}
	de = &DevError{Func: fn, Line: line, Err: err}
	p.log.Error("device error", logging.F("func", fn), logging.F("line", line), logging.Err(err))
	return de
}
