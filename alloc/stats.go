package alloc

import (
	"fmt"

	"github.com/docker/go-units"
)

// Stats counts allocator activity.
type Stats struct {
	Allocs      uint64
	Frees       uint64
	InUse       int64 // bytes in live blocks
	Superblocks int   // superblocks taken from the source and not returned
}

func (s *Stats) alloc(c Class) {
	s.Allocs++
	s.InUse += int64(c.Size())
}

func (s *Stats) free(c Class) {
	s.Frees++
	s.InUse -= int64(c.Size())
}

func (s Stats) String() string {
	return fmt.Sprintf("allocs=%d frees=%d in-use=%s superblocks=%d",
		s.Allocs, s.Frees, units.BytesSize(float64(s.InUse)), s.Superblocks)
}
