package patch

import (
	"fmt"

	"timerfix/internal/bytecode"
)

// Region is a half-open byte range [Start, End) of a method's code.
type Region struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Region) Len() int {
	return r.End - r.Start
}

// Inside reports whether off lies strictly between Start and End, where no
// instruction boundary is preserved by a rewrite.
func (r Region) Inside(off int) bool {
	return off > r.Start && off < r.End
}

func (r Region) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Apply writes b over r and re-decodes the whole method. b must be exactly
// as long as r. Both ends of r must be instruction boundaries.
func Apply(s *bytecode.Stream, r Region, b []byte) error {
	if !s.IsBoundary(r.Start) || (r.End != s.Len() && !s.IsBoundary(r.End)) {
		return fmt.Errorf("%w: region %s does not start and end on instruction boundaries", ErrDecode, r)
	}
	if len(b) < r.Len() {
		return fmt.Errorf("%w: %d bytes for region %s of %d", ErrRegionUnderfill, len(b), r, r.Len())
	}
	if err := s.Overwrite(r.Start, r.End, b); err != nil {
		return err
	}
	if err := s.Verify(); err != nil {
		return fmt.Errorf("verify after patching %s: %w", r, err)
	}
	return nil
}
