package radix

import "github.com/aglyzov/go-cds/alloc"

type block struct {
	ref alloc.Ref
	c   alloc.Class
}

// batch plans one mutation in two phases. Planning allocates every new
// block up front and queues writes; commit either applies the writes and
// frees retired blocks, or frees the new blocks and leaves the tree as is.
// Writes must only touch new blocks, reused blocks and the link slots.
type batch struct {
	t       *Tree
	noAlloc bool
	err     error
	fresh   []block
	retired []block
	writes  []func()
}

func (b *batch) reset(t *Tree, noAlloc bool) {
	b.t = t
	b.noAlloc = noAlloc
	b.err = nil
	b.fresh = b.fresh[:0]
	b.retired = b.retired[:0]
	clear(b.writes)
	b.writes = b.writes[:0]
}

// alloc returns a zeroed block or 0 once the batch failed.
func (b *batch) alloc(c alloc.Class) alloc.Ref {
	if b.err != nil {
		return 0
	}
	if b.noAlloc {
		b.err = errNoAlloc
		return 0
	}
	ref, err := b.t.a.Alloc(c)
	if err != nil {
		b.err = err
		return 0
	}
	b.fresh = append(b.fresh, block{ref, c})
	return ref
}

func (b *batch) retire(ref alloc.Ref, c alloc.Class) {
	b.retired = append(b.retired, block{ref, c})
}

func (b *batch) write(fn func()) {
	b.writes = append(b.writes, fn)
}

// place returns the block to encode a node of class need into: old itself
// when its class matches (or is larger in a no-alloc batch), else a new one.
func (b *batch) place(old alloc.Ref, need alloc.Class) (alloc.Ref, alloc.Class) {
	if old != 0 {
		have := b.t.classOf(old)
		if have == need || (b.noAlloc && have > need) {
			return old, have
		}
		b.retire(old, have)
	}
	return b.alloc(need), need
}

// slot locates a kid reference: kid idx of a scan node, the kid of rank idx
// of a mask node, or the root when node is 0.
type slot struct {
	node alloc.Ref
	idx  int
}

// link queues pointing s at ref.
func (b *batch) link(s slot, ref alloc.Ref, old alloc.Ref) {
	if ref == old {
		return
	}
	t := b.t
	b.write(func() {
		if s.node == 0 {
			t.root = ref
			return
		}
		mem := t.node(s.node)
		if kindOf(mem) == kindMask {
			t.setMaskKid(mem, s.idx, ref)
			return
		}
		le.PutUint32(mem[scanKidsOff(mem)+refSize*s.idx:], uint32(ref))
	})
}

func (b *batch) commit() error {
	a := b.t.a
	if b.err != nil {
		for _, blk := range b.fresh {
			a.Free(blk.ref, blk.c)
		}
		return b.err
	}
	for _, fn := range b.writes {
		fn()
	}
	for _, blk := range b.retired {
		a.Free(blk.ref, blk.c)
	}
	return nil
}
