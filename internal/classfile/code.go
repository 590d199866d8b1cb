package classfile

import (
	"encoding/binary"
	"fmt"
)

// ExceptionHandler is one row of a Code attribute's exception table.
type ExceptionHandler struct {
	StartPC, EndPC, HandlerPC uint16
	CatchType                 uint16
}

// Code is a decoded Code attribute. Its Attributes (line numbers, local
// variables, stack maps) are kept opaque and written back untouched.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionHandler
	Attributes     []Attribute
}

// ParseCode decodes the body of a Code attribute.
func ParseCode(info []byte) (*Code, error) {
	r := &reader{buf: info}
	c := &Code{MaxStack: r.u16(), MaxLocals: r.u16()}
	n := r.u32()
	if r.err == nil && int(n) > len(info) {
		return nil, fmt.Errorf("%w: code length %d exceeds attribute of %d bytes", ErrTruncated, n, len(info))
	}
	c.Code = r.bytes(int(n))
	rows := int(r.u16())
	for i := 0; i < rows && r.err == nil; i++ {
		c.ExceptionTable = append(c.ExceptionTable, ExceptionHandler{
			StartPC:   r.u16(),
			EndPC:     r.u16(),
			HandlerPC: r.u16(),
			CatchType: r.u16(),
		})
	}
	c.Attributes = r.attributes()
	if r.err != nil {
		return nil, fmt.Errorf("parse code attribute: %w", r.err)
	}
	return c, nil
}

// Encode returns the body of the Code attribute.
func (c *Code) Encode() []byte {
	b := make([]byte, 0, 12+len(c.Code)+8*len(c.ExceptionTable))
	b = binary.BigEndian.AppendUint16(b, c.MaxStack)
	b = binary.BigEndian.AppendUint16(b, c.MaxLocals)
	b = binary.BigEndian.AppendUint32(b, uint32(len(c.Code)))
	b = append(b, c.Code...)
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.ExceptionTable)))
	for _, h := range c.ExceptionTable {
		b = binary.BigEndian.AppendUint16(b, h.StartPC)
		b = binary.BigEndian.AppendUint16(b, h.EndPC)
		b = binary.BigEndian.AppendUint16(b, h.HandlerPC)
		b = binary.BigEndian.AppendUint16(b, h.CatchType)
	}
	return appendAttributes(b, c.Attributes)
}
