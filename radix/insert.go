package radix

import (
	"fmt"
	"slices"

	"github.com/aglyzov/go-cds/alloc"
	"github.com/aglyzov/go-cds/scan"
)

// Insert stores val under key. It returns the previous value and whether
// the key was present. A failed insert leaves the tree unchanged.
func (t *Tree) Insert(key []byte, val uint64) (prev uint64, occupied bool, err error) {
	if t.deleted {
		return 0, false, ErrDeleted
	}
	if len(key) > t.maxKeyLen {
		return 0, false, fmt.Errorf("%w: %d > %d bytes", ErrKeyTooLong, len(key), t.maxKeyLen)
	}
	if t.capacity > 0 && t.count >= t.capacity {
		if _, ok := t.Find(key); !ok {
			return 0, false, ErrCapacity
		}
	}
	b := &t.scratch
	b.reset(t, false)

	prev, occupied = t.planInsert(b, key, val)

	if err := b.commit(); err != nil {
		t.log.Warn("radix: insert failed", "error", err, "key_len", len(key), "count", t.count)
		return 0, false, fmt.Errorf("radix: insert: %w", err)
	}
	if !occupied {
		t.count++
		t.maxKey = max(t.maxKey, len(key))
	}
	t.version++
	return prev, occupied, nil
}

func (t *Tree) planInsert(b *batch, key []byte, val uint64) (uint64, bool) {
	if t.root == 0 {
		b.link(slot{}, t.leaf(b, key, val), 0)
		return 0, false
	}
	var (
		up   slot
		ref  = t.root
		rest = key
	)
	for {
		mem := t.node(ref)

		if kindOf(mem) == kindMask {
			if len(rest) == 0 {
				old := t.maskValue(mem)
				t.planMaskValue(b, ref, old, val)
				return old.val, old.set
			}
			c := rest[0]
			if maskHas(mem, c) {
				r := maskRank(mem, c)
				up, ref, rest = slot{ref, r}, t.maskKid(mem, r), rest[1:]
				continue
			}
			t.planMaskAdd(b, ref, mem, c, t.leaf(b, rest[1:], val))
			return 0, false
		}

		prefix := scanPrefix(mem)
		if d := scan.PrefixFirstDiff(prefix, rest); d < len(prefix) {
			t.planSplit(b, up, ref, mem, d, rest, val)
			return 0, false
		}
		rest = rest[len(prefix):]

		if len(rest) == 0 {
			old := t.scanValue(mem)
			t.planScanValue(b, up, ref, mem, old, val)
			return old.val, old.set
		}
		br := scanBranches(mem)
		if i := scan.FindBranch(rest[0], br); i < len(br) {
			up, ref, rest = slot{ref, i}, scanKid(mem, i), rest[1:]
			continue
		}
		img := t.decodeScan(mem)
		i := scan.FindNewBranchPos(rest[0], img.branches)
		img.branches = slices.Insert(img.branches, i, rest[0])
		img.kids = slices.Insert(img.kids, i, t.leaf(b, rest[1:], val))
		b.link(up, t.storeScan(b, img, ref), ref)
		return 0, false
	}
}

// leaf plans a new node chain holding only key (copied) and val.
func (t *Tree) leaf(b *batch, key []byte, val uint64) alloc.Ref {
	img := scanImage{
		prefix: append([]byte(nil), key...),
		value:  valueSlot{val: val, set: true},
	}
	return t.storeScan(b, img, 0)
}

// planSplit splits the scan node at ref whose prefix diverges from rest at d.
func (t *Tree) planSplit(b *batch, up slot, ref alloc.Ref, mem []byte, d int, rest []byte, val uint64) {
	var (
		bottom = t.decodeScan(mem)
		c      = bottom.prefix[d]
		top    = scanImage{prefix: bottom.prefix[:d:d]}
	)
	bottom.prefix = bottom.prefix[d+1:]
	below := t.storeScan(b, bottom, ref)

	switch {
	case d == len(rest):
		top.value = valueSlot{val: val, set: true}
		top.branches = []byte{c}
		top.kids = []alloc.Ref{below}
	case rest[d] < c:
		top.branches = []byte{rest[d], c}
		top.kids = []alloc.Ref{t.leaf(b, rest[d+1:], val), below}
	default:
		top.branches = []byte{c, rest[d]}
		top.kids = []alloc.Ref{below, t.leaf(b, rest[d+1:], val)}
	}
	b.link(up, t.storeScan(b, top, 0), ref)
}

// planScanValue stores val on the scan node at ref that ends the key.
func (t *Tree) planScanValue(b *batch, up slot, ref alloc.Ref, mem []byte, old valueSlot, val uint64) {
	if old.set {
		switch f, long := mem[3], isLong(val); {
		case f&flagLong != 0 && long:
			b.write(func() { le.PutUint64(t.node(ref)[8:], val) })
			return
		case f&flagIndirect != 0 && long:
			b.write(func() { t.writePtr(old.ptr, val) })
			return
		case f&(flagLong|flagIndirect) == 0 && !long:
			b.write(func() { le.PutUint32(t.node(ref)[4:], uint32(val)) })
			return
		}
	}
	// the value slot changes size: rebuild the node
	img := t.decodeScan(mem)
	img.value.val, img.value.set = val, true
	b.link(up, t.storeScan(b, img, ref), ref)
}

// planMaskValue stores val on the mask node at ref.
func (t *Tree) planMaskValue(b *batch, ref alloc.Ref, old valueSlot, val uint64) {
	v := valueSlot{val: val, set: true, ptr: old.ptr}
	switch {
	case old.ptr == 0 && isLong(val):
		v.ptr = b.alloc(alloc.Class16)
	case old.ptr != 0 && !isLong(val):
		b.retire(old.ptr, alloc.Class16)
		v.ptr = 0
	}
	if v.ptr != 0 {
		ptr := v.ptr
		b.write(func() { t.writePtr(ptr, val) })
	}
	b.write(func() { putMaskValue(t.node(ref), v) })
}

// planMaskAdd adds branch c leading to kid to the mask node at ref.
func (t *Tree) planMaskAdd(b *batch, ref alloc.Ref, mem []byte, c byte, kid alloc.Ref) {
	var (
		n    = maskCount(mem)
		r    = maskRank(mem, c)
		next alloc.Ref
	)
	if nextBlocks(n+1) > nextBlocks(n) {
		next = b.alloc(alloc.Class128)
	}
	b.write(func() {
		mem := t.node(ref)
		if next != 0 {
			t.initNext(next)
			le.PutUint32(mem[maskNextOff+refSize*nextBlocks(n):], uint32(next))
		}
		for i := n; i > r; i-- {
			t.setMaskKid(mem, i, t.maskKid(mem, i-1))
		}
		t.setMaskKid(mem, r, kid)
		maskFlip(mem, c)
		le.PutUint16(mem[maskCountOff:], uint16(n+1))
	})
}

// storeScan plans encoding img into a node, reusing old when it fits, and
// returns the node to link in its place. Too many branches promote img to
// a mask node, a too long prefix is split into a chain.
func (t *Tree) storeScan(b *batch, img scanImage, old alloc.Ref) alloc.Ref {
	if len(img.kids) > maxScanBranches {
		return t.promote(b, img, old)
	}
	if room := t.prefixRoom(img); len(img.prefix) > room {
		cut := len(img.prefix) - room
		bottom := img
		bottom.prefix = img.prefix[cut:]
		top := scanImage{
			prefix:   img.prefix[: cut-1 : cut-1],
			branches: []byte{img.prefix[cut-1]},
			kids:     []alloc.Ref{t.storeScan(b, bottom, old)},
		}
		return t.storeScan(b, top, 0)
	}
	t.planValue(b, &img.value, false)

	c, _ := alloc.ClassFor(t.scanSize(img))
	ref, c := b.place(old, c)
	b.write(func() { t.encodeScan(ref, c, img) })
	return ref
}

// promote plans a mask node holding the branches and value of img. A scan
// node above it takes the prefix.
func (t *Tree) promote(b *batch, img scanImage, old alloc.Ref) alloc.Ref {
	t.log.Debug("radix: promoting to mask", "node", old, "branches", len(img.kids))

	prefix := img.prefix
	img.prefix = nil
	mask := t.storeMask(b, img)

	if len(prefix) == 0 {
		if old != 0 {
			b.retire(old, t.classOf(old))
		}
		return mask
	}
	last := len(prefix) - 1
	top := scanImage{
		prefix:   prefix[:last:last],
		branches: []byte{prefix[last]},
		kids:     []alloc.Ref{mask},
	}
	return t.storeScan(b, top, old)
}

func (t *Tree) storeMask(b *batch, img scanImage) alloc.Ref {
	t.planValue(b, &img.value, true)

	ref := b.alloc(alloc.Class128)
	next := make([]alloc.Ref, nextBlocks(len(img.kids)))
	for i := range next {
		next[i] = b.alloc(alloc.Class128)
	}
	b.write(func() { t.encodeMask(ref, img, next) })
	return ref
}
