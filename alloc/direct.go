package alloc

import "fmt"

// Direct serves every block with its own heap allocation.
// Refs are handles into a table of blocks; freed handles are reused.
type Direct struct {
	blocks [][]byte
	free   []Ref
	limit  int64
	stats  Stats
}

var _ Allocator = (*Direct)(nil)

// NewDirect returns a Direct allocator holding at most limit bytes in
// live blocks (limit <= 0 means no limit).
func NewDirect(limit int64) *Direct {
	return &Direct{
		blocks: make([][]byte, 1, 64), // handle 0 is nil
		limit:  limit,
	}
}

func (d *Direct) Alloc(c Class) (Ref, error) {
	size := c.Size()
	if d.limit > 0 && d.stats.InUse+int64(size) > d.limit {
		return 0, ErrOutOfMemory
	}
	// one spare word for scans reading past the end
	block := make([]byte, size, size+8)

	var ref Ref
	if l := len(d.free); l > 0 {
		ref = d.free[l-1]
		d.free = d.free[:l-1]
		d.blocks[ref] = block
	} else {
		if uint64(len(d.blocks)) > uint64(^Ref(0)) {
			return 0, ErrOutOfMemory
		}
		ref = Ref(len(d.blocks))
		d.blocks = append(d.blocks, block)
	}
	d.stats.alloc(c)
	return ref, nil
}

func (d *Direct) Free(ref Ref, c Class) {
	if ref == 0 || int(ref) >= len(d.blocks) || d.blocks[ref] == nil {
		panic(fmt.Sprintf("alloc: free of unknown block %#x", uint32(ref)))
	}
	if len(d.blocks[ref]) != c.Size() {
		panic(fmt.Sprintf("alloc: block %#x freed as %v, allocated as %d bytes",
			uint32(ref), c, len(d.blocks[ref])))
	}
	d.blocks[ref] = nil
	d.free = append(d.free, ref)
	d.stats.free(c)
}

func (d *Direct) Bytes(ref Ref, c Class) []byte {
	block := d.blocks[ref]
	return block[:c.Size():cap(block)]
}

func (d *Direct) Stats() Stats {
	return d.stats
}
