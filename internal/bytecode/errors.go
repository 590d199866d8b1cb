package bytecode

import "errors"

var (
	// ErrDecode reports an offset that does not start a well-formed instruction.
	ErrDecode = errors.New("decode error")
	// ErrEndOfStream is returned by Cursor.Next once every instruction was read.
	ErrEndOfStream = errors.New("end of stream")
	// ErrRegionOverflow reports a write that would not fit its byte range.
	ErrRegionOverflow = errors.New("region overflow")
	// ErrUnexpectedOperandEncoding reports an operand whose shape does not
	// match what the caller expected of the instruction.
	ErrUnexpectedOperandEncoding = errors.New("unexpected operand encoding")
)
