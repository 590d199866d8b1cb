package bytecode

import (
	"fmt"
	"sync"
)

// Stream is a random-access view over one method's code. It borrows the
// buffer passed to NewStream; Overwrite writes through to it.
//
// Any number of cursors may read a Stream concurrently. Overwrite must not
// race with readers.
type Stream struct {
	code []byte

	mu      sync.Mutex
	list    []Instruction
	bounds  map[uint32]int
	decoded bool
	err     error
}

// NewStream wraps code without copying it.
func NewStream(code []byte) *Stream {
	return &Stream{code: code}
}

// Len returns the size of the code in bytes.
func (s *Stream) Len() int {
	return len(s.code)
}

// Bytes returns the underlying buffer.
func (s *Stream) Bytes() []byte {
	return s.code
}

// decodeAll walks the code front to back and caches the instruction list.
func (s *Stream) decodeAll() ([]Instruction, map[uint32]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decoded {
		return s.list, s.bounds, s.err
	}

	var list []Instruction
	bounds := make(map[uint32]int)
	var err error
	for off := 0; off < len(s.code); {
		var in Instruction
		in, err = decodeOne(s.code, off)
		if err != nil {
			break
		}
		in.Index = len(list)
		bounds[in.Offset] = in.Index
		list = append(list, in)
		off += int(in.Length)
	}

	s.list, s.bounds, s.err, s.decoded = list, bounds, err, true
	return list, bounds, err
}

// Instructions decodes the whole method. Each instruction's Index is its
// position in the returned slice.
func (s *Stream) Instructions() ([]Instruction, error) {
	list, _, err := s.decodeAll()
	if err != nil {
		return nil, err
	}
	out := make([]Instruction, len(list))
	copy(out, list)
	return out, nil
}

// DecodeAt returns the instruction starting at offset. The offset must be
// reachable by decoding from offset 0.
func (s *Stream) DecodeAt(offset int) (Instruction, error) {
	list, bounds, err := s.decodeAll()
	if idx, ok := bounds[uint32(offset)]; ok && offset >= 0 {
		return list[idx], nil
	}
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{}, fmt.Errorf("%w: offset %d is not an instruction boundary", ErrDecode, offset)
}

// IsBoundary reports whether an instruction starts at offset.
func (s *Stream) IsBoundary(offset int) bool {
	_, err := s.DecodeAt(offset)
	return err == nil
}

// Verify decodes the whole method from offset 0.
func (s *Stream) Verify() error {
	_, _, err := s.decodeAll()
	return err
}

// Overwrite copies b over [start, end). A shorter b leaves the remaining
// bytes of the range as they were.
func (s *Stream) Overwrite(start, end int, b []byte) error {
	if start < 0 || end < start || end > len(s.code) {
		return fmt.Errorf("%w: range [%d,%d) outside code of %d bytes", ErrRegionOverflow, start, end, len(s.code))
	}
	if len(b) > end-start {
		return fmt.Errorf("%w: %d bytes do not fit in [%d,%d)", ErrRegionOverflow, len(b), start, end)
	}

	s.mu.Lock()
	copy(s.code[start:end], b)
	s.list, s.bounds, s.err, s.decoded = nil, nil, nil, false
	s.mu.Unlock()
	return nil
}

// NewCursor returns a cursor positioned at offset 0.
func (s *Stream) NewCursor() *Cursor {
	return &Cursor{s: s}
}

// Cursor reads instructions forward from a position in a Stream. The position
// is a byte offset, so it stays meaningful across overwrites of other ranges.
type Cursor struct {
	s   *Stream
	pos int
}

// Pos returns the offset of the next instruction to be read.
func (c *Cursor) Pos() int {
	return c.pos
}

// HasNext reports whether Next would return an instruction.
func (c *Cursor) HasNext() bool {
	return c.pos < len(c.s.code)
}

// Next decodes the instruction at the cursor and advances past it.
func (c *Cursor) Next() (Instruction, error) {
	if !c.HasNext() {
		return Instruction{}, ErrEndOfStream
	}
	in, err := c.s.DecodeAt(c.pos)
	if err != nil {
		return Instruction{}, err
	}
	c.pos = int(in.End())
	return in, nil
}

// Seek moves the cursor to offset, which must be an instruction boundary or
// the end of the code.
func (c *Cursor) Seek(offset int) error {
	if offset != len(c.s.code) {
		if _, err := c.s.DecodeAt(offset); err != nil {
			return err
		}
	}
	c.pos = offset
	return nil
}
