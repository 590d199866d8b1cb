package classfile

import (
	"encoding/binary"
	"fmt"
)

// reader walks a big-endian buffer and remembers the first short read.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, len(r.buf)-r.off)
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

// bytes returns a copy so later edits never alias the input.
func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.buf[r.off:])
	r.off += n
	return b
}

func (r *reader) attributes() []Attribute {
	n := int(r.u16())
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		name := r.u16()
		size := r.u32()
		attrs = append(attrs, Attribute{NameIndex: name, Info: r.bytes(int(size))})
	}
	return attrs
}

func appendAttributes(b []byte, attrs []Attribute) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(attrs)))
	for _, a := range attrs {
		b = binary.BigEndian.AppendUint16(b, a.NameIndex)
		b = binary.BigEndian.AppendUint32(b, uint32(len(a.Info)))
		b = append(b, a.Info...)
	}
	return b
}
