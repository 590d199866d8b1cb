package patch

import (
	"errors"

	"timerfix/internal/bytecode"
)

var (
	// ErrAnchorNotFound reports that a required instruction pattern is absent.
	ErrAnchorNotFound = errors.New("anchor not found")
	// ErrRegionUnderfill reports a replacement shorter than its region.
	ErrRegionUnderfill = errors.New("region underfill")
	// ErrUnsupportedPatch reports a patch category with no in-place patcher.
	ErrUnsupportedPatch = errors.New("unsupported patch")

	ErrDecode                    = bytecode.ErrDecode
	ErrRegionOverflow            = bytecode.ErrRegionOverflow
	ErrUnexpectedOperandEncoding = bytecode.ErrUnexpectedOperandEncoding
)

// PassError is returned by a failed pass. State is where the pass stopped.
type PassError struct {
	State State
	Err   error
}

func (e *PassError) Error() string {
	return "flatten pass failed while " + e.State.String() + ": " + e.Err.Error()
}

func (e *PassError) Unwrap() error {
	return e.Err
}
