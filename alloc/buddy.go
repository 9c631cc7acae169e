package alloc

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

const (
	tagClassMask = 0x3
	tagFree      = 0x4
	tagPrevMask  = 0xffff_fff8
	tagNextShift = 32
	tagPrevShift = 3
)

// Buddy splits superblocks of a Source into blocks of 8 to 64 bytes and
// coalesces freed buddies back. Class 4 requests go to the Source directly.
type Buddy struct {
	src   Source
	mask  uint32     // classes with at least one free block
	heads [4]Ref     // free-list heads per class
	stats Stats
}

var _ Allocator = (*Buddy)(nil)

func NewBuddy(src Source) *Buddy {
	return &Buddy{src: src}
}

// Source returns the superblock supplier.
func (a *Buddy) Source() Source {
	return a.src
}

func (a *Buddy) Alloc(c Class) (Ref, error) {
	if c >= ClassSuper {
		ref, err := a.src.AllocSuperblock()
		if err != nil {
			return 0, err
		}
		a.stats.Superblocks++
		a.stats.alloc(ClassSuper)
		return ref, nil
	}
	var (
		ref Ref
		k   Class
	)
	if avail := a.mask >> c << c; avail != 0 {
		k = Class(bits.TrailingZeros32(avail))
		ref = a.pop(k)
	} else {
		var err error
		if ref, err = a.src.AllocSuperblock(); err != nil {
			return 0, err
		}
		a.stats.Superblocks++
		k = ClassSuper
	}
	// split the excess keeping the lower half
	for k > c {
		k--
		a.push(ref+k.Words(), k)
	}
	clear(a.src.Bytes(ref, c.Size()))
	a.stats.alloc(c)
	return ref, nil
}

// Free releases a block. It panics when the block is already free.
func (a *Buddy) Free(ref Ref, c Class) {
	if ref == 0 {
		panic("alloc: free of nil ref")
	}
	a.stats.free(c)
	if c >= ClassSuper {
		a.stats.Superblocks--
		a.src.FreeSuperblock(ref)
		return
	}
	if a.tag(ref)&tagFree != 0 {
		panic(fmt.Sprintf("alloc: double free of %v block %#x", c, uint32(ref)))
	}
	for c < ClassSuper {
		buddy := ref ^ c.Words()
		t := a.tag(buddy)
		if t&tagFree == 0 || Class(t&tagClassMask) != c {
			break
		}
		a.unlink(buddy, c)
		ref = min(ref, buddy)
		c++
	}
	if c == ClassSuper {
		// mark the superblock so a stale free is still detected
		a.setTag(ref, 0, 0, 0)
		a.stats.Superblocks--
		a.src.FreeSuperblock(ref)
		return
	}
	a.push(ref, c)
}

func (a *Buddy) Bytes(ref Ref, c Class) []byte {
	return a.src.Bytes(ref, c.Size())
}

func (a *Buddy) Stats() Stats {
	return a.stats
}

// FreeBlocks returns the number of free blocks per class.
func (a *Buddy) FreeBlocks() (n [4]int) {
	for c := range a.heads {
		for ref := a.heads[c]; ref != 0; ref = Ref(a.tag(ref) >> tagNextShift) {
			n[c]++
		}
	}
	return n
}

func (a *Buddy) tag(ref Ref) uint64 {
	return binary.LittleEndian.Uint64(a.src.Bytes(ref, 8))
}

func (a *Buddy) putTag(ref Ref, t uint64) {
	binary.LittleEndian.PutUint64(a.src.Bytes(ref, 8), t)
}

func (a *Buddy) setTag(ref, next, prev Ref, c Class) {
	a.putTag(ref, uint64(next)<<tagNextShift|uint64(prev)<<tagPrevShift|tagFree|uint64(c))
}

func (a *Buddy) push(ref Ref, c Class) {
	head := a.heads[c]
	a.setTag(ref, head, 0, c)
	if head != 0 {
		t := a.tag(head)
		a.putTag(head, t&^tagPrevMask|uint64(ref)<<tagPrevShift)
	}
	a.heads[c] = ref
	a.mask |= 1 << c
}

func (a *Buddy) pop(c Class) Ref {
	ref := a.heads[c]
	a.unlink(ref, c)
	return ref
}

func (a *Buddy) unlink(ref Ref, c Class) {
	var (
		t    = a.tag(ref)
		next = Ref(t >> tagNextShift)
		prev = Ref((t & tagPrevMask) >> tagPrevShift)
	)
	if prev == 0 {
		a.heads[c] = next
	} else {
		pt := a.tag(prev)
		a.putTag(prev, pt&(1<<tagNextShift-1)|uint64(next)<<tagNextShift)
	}
	if next != 0 {
		nt := a.tag(next)
		a.putTag(next, nt&^tagPrevMask|uint64(prev)<<tagPrevShift)
	}
	if a.heads[c] == 0 {
		a.mask &^= 1 << c
	}
}
