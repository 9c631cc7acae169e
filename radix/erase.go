package radix

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/hideo55/go-popcount"

	"github.com/aglyzov/go-cds/alloc"
	"github.com/aglyzov/go-cds/scan"
)

// step is a node on the path to a key and the slot referencing it.
type step struct {
	ref alloc.Ref
	up  slot
}

// Erase removes key and returns its value. It never fails: when the tree
// cannot allocate the nodes a compaction needs, it leaves the surrounding
// nodes uncompacted.
func (t *Tree) Erase(key []byte) (uint64, bool) {
	path, ok := t.trace(key)
	t.path = path
	if !ok {
		return 0, false
	}
	var (
		last = path[len(path)-1]
		mem  = t.node(last.ref)
		old  valueSlot
	)
	if kindOf(mem) == kindMask {
		old = t.maskValue(mem)
	} else {
		old = t.scanValue(mem)
	}

	b := &t.scratch
	b.reset(t, false)
	t.planErase(b, path)

	if err := b.commit(); err != nil {
		t.log.Warn("radix: erase without compaction", "error", err, "key_len", len(key))

		b.reset(t, true)
		t.planErase(b, path)
		if err := b.commit(); err != nil {
			panic(fmt.Sprintf("radix: allocation-free erase failed: %v", err))
		}
	}
	t.count--
	t.version++
	return old.val, true
}

// trace returns the path to the node ending key and whether key is present.
func (t *Tree) trace(key []byte) ([]step, bool) {
	var (
		path = t.path[:0]
		up   slot
		ref  = t.root
		rest = key
	)
	for ref != 0 {
		path = append(path, step{ref, up})
		mem := t.node(ref)

		if kindOf(mem) == kindMask {
			if len(rest) == 0 {
				return path, t.maskValue(mem).set
			}
			if !maskHas(mem, rest[0]) {
				break
			}
			r := maskRank(mem, rest[0])
			up, ref, rest = slot{ref, r}, t.maskKid(mem, r), rest[1:]
			continue
		}
		prefix := scanPrefix(mem)
		if len(rest) < len(prefix) || scan.PrefixFirstDiff(prefix, rest) < len(prefix) {
			break
		}
		if rest = rest[len(prefix):]; len(rest) == 0 {
			return path, t.scanValue(mem).set
		}
		br := scanBranches(mem)
		i := scan.FindBranch(rest[0], br)
		if i == len(br) {
			break
		}
		up, ref, rest = slot{ref, i}, scanKid(mem, i), rest[1:]
	}
	return path, false
}

func (t *Tree) planErase(b *batch, path []step) {
	last := path[len(path)-1]
	mem := t.node(last.ref)

	if kindOf(mem) == kindMask {
		switch n := maskCount(mem); {
		case n == 0:
			// left without kids by an earlier allocation-free erase
			t.retireMask(b, last.ref, mem)
			t.planDetach(b, path[:len(path)-1], last.up)
		case n <= maskDemoteAt && !b.noAlloc:
			img := t.decodeMask(mem)
			if img.value.ptr != 0 {
				b.retire(img.value.ptr, alloc.Class16)
			}
			img.value = valueSlot{}
			t.retireNext(b, mem)
			t.storeCompact(b, last.up, last.ref, img)
		default:
			if v := t.maskValue(mem); v.ptr != 0 {
				b.retire(v.ptr, alloc.Class16)
			}
			ref := last.ref
			b.write(func() { putMaskValue(t.node(ref), valueSlot{}) })
		}
		return
	}
	img := t.decodeScan(mem)
	if img.value.ptr != 0 {
		b.retire(img.value.ptr, alloc.Class16)
	}
	img.value = valueSlot{}

	if len(img.kids) == 0 {
		b.retire(last.ref, t.classOf(last.ref))
		t.planDetach(b, path[:len(path)-1], last.up)
		return
	}
	t.storeCompact(b, last.up, last.ref, img)
}

// planDetach removes the kid at s from the last node of path, collapsing
// nodes left without keys.
func (t *Tree) planDetach(b *batch, path []step, s slot) {
	if len(path) == 0 {
		b.link(slot{}, 0, t.root)
		return
	}
	p := path[len(path)-1]
	mem := t.node(p.ref)

	if kindOf(mem) == kindMask {
		n, v := maskCount(mem), t.maskValue(mem)
		switch {
		case n == 1 && !v.set:
			t.retireMask(b, p.ref, mem)
			t.planDetach(b, path[:len(path)-1], p.up)
		case n-1 <= maskDemoteAt && !b.noAlloc:
			t.log.Debug("radix: demoting mask", "node", p.ref, "branches", n-1)

			img := t.decodeMask(mem)
			img.branches = slices.Delete(img.branches, s.idx, s.idx+1)
			img.kids = slices.Delete(img.kids, s.idx, s.idx+1)
			t.retireNext(b, mem)
			t.storeCompact(b, p.up, p.ref, img)
		default:
			t.planMaskRemove(b, p.ref, mem, s.idx)
		}
		return
	}
	img := t.decodeScan(mem)
	img.branches = slices.Delete(img.branches, s.idx, s.idx+1)
	img.kids = slices.Delete(img.kids, s.idx, s.idx+1)

	if len(img.kids) == 0 && !img.value.set {
		b.retire(p.ref, t.classOf(p.ref))
		t.planDetach(b, path[:len(path)-1], p.up)
		return
	}
	t.storeCompact(b, p.up, p.ref, img)
}

// storeCompact stores img in place of the node at ref. A valueless node with a
// single scan kid is merged into the kid when the joined prefix fits.
func (t *Tree) storeCompact(b *batch, up slot, ref alloc.Ref, img scanImage) {
	if !b.noAlloc && !img.value.set && len(img.kids) == 1 {
		kid := img.kids[0]
		if kmem := t.node(kid); kindOf(kmem) != kindMask {
			merged := t.decodeScan(kmem)
			merged.prefix = slices.Concat(img.prefix, img.branches, merged.prefix)
			if len(merged.prefix) <= t.prefixRoom(merged) {
				b.retire(ref, t.classOf(ref))
				b.link(up, t.storeScan(b, merged, kid), ref)
				return
			}
		}
	}
	b.link(up, t.storeScan(b, img, ref), ref)
}

// planMaskRemove drops the kid of rank r from the mask node at ref in place.
func (t *Tree) planMaskRemove(b *batch, ref alloc.Ref, mem []byte, r int) {
	var (
		n    = maskCount(mem)
		c    = maskSelect(mem, r)
		drop = -1
	)
	if nextBlocks(n-1) < nextBlocks(n) {
		drop = nextBlocks(n) - 1
		b.retire(maskNextRef(mem, drop), alloc.Class128)
	}
	b.write(func() {
		mem := t.node(ref)
		for i := r; i < n-1; i++ {
			t.setMaskKid(mem, i, t.maskKid(mem, i+1))
		}
		if drop >= 0 {
			le.PutUint32(mem[maskNextOff+refSize*drop:], 0)
		} else {
			t.setMaskKid(mem, n-1, 0)
		}
		maskFlip(mem, c)
		le.PutUint16(mem[maskCountOff:], uint16(n-1))
	})
}

// maskSelect returns the branch byte of rank r.
func maskSelect(mem []byte, r int) byte {
	for i := 0; i < 4; i++ {
		w := maskWord(mem, i)
		if cnt := int(popcount.Count(w)); r >= cnt {
			r -= cnt
			continue
		}
		for ; r > 0; r-- {
			w &= w - 1
		}
		return byte(i<<6 + bits.TrailingZeros64(w))
	}
	panic(fmt.Sprintf("radix: mask rank %d out of range", r))
}

func (t *Tree) retireNext(b *batch, mem []byte) {
	for i := 0; i < maskMaxNext; i++ {
		if next := maskNextRef(mem, i); next != 0 {
			b.retire(next, alloc.Class128)
		}
	}
}

func (t *Tree) retireMask(b *batch, ref alloc.Ref, mem []byte) {
	if v := t.maskValue(mem); v.ptr != 0 {
		b.retire(v.ptr, alloc.Class16)
	}
	t.retireNext(b, mem)
	b.retire(ref, alloc.Class128)
}
