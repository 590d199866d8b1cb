package classfile

import "errors"

var (
	ErrBadMagic       = errors.New("not a class file")
	ErrTruncated      = errors.New("truncated class file")
	ErrMethodNotFound = errors.New("method not found")
	ErrNoCode         = errors.New("method has no code attribute")
	ErrBadConstant    = errors.New("bad constant pool reference")
)
