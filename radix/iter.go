package radix

import (
	"github.com/aglyzov/go-cds/alloc"
	"github.com/aglyzov/go-cds/scan"
)

type frame struct {
	ref   alloc.Ref
	start int // key length above the node
	plen  int
	mask  bool
	pos   int // -1 at the node value, else the branch taken: an index (scan) or a byte (mask)
}

// Iterator walks keys in ascending byte order.
//
//	it := tree.Iter()
//	for it.Next() {
//		use(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
//
// Mutating the tree stops the iteration with ErrStaleIterator.
type Iterator struct {
	t       *Tree
	version uint64
	root    alloc.Ref
	base    []byte // key bytes above root
	stack   []frame
	key     []byte
	dirty   int // the lowest frame changed since the key was built
	val     uint64
	started bool
	err     error
}

// Iter returns an iterator over all keys.
func (t *Tree) Iter() *Iterator {
	return t.IterPrefix(nil)
}

// IterPrefix returns an iterator over the keys starting with prefix.
func (t *Tree) IterPrefix(prefix []byte) *Iterator {
	ref, rest := t.root, prefix
	for ref != 0 {
		mem := t.node(ref)
		if kindOf(mem) == kindMask {
			if len(rest) == 0 {
				break
			}
			if !maskHas(mem, rest[0]) {
				ref = 0
				break
			}
			ref, rest = t.maskKid(mem, maskRank(mem, rest[0])), rest[1:]
			continue
		}
		p := scanPrefix(mem)
		d := scan.PrefixFirstDiff(p, rest)
		if d == len(rest) {
			break // the whole subtree matches
		}
		if d < len(p) {
			ref = 0
			break
		}
		rest = rest[len(p):]
		br := scanBranches(mem)
		i := scan.FindBranch(rest[0], br)
		if i == len(br) {
			ref = 0
			break
		}
		ref, rest = scanKid(mem, i), rest[1:]
	}
	base := prefix[:len(prefix)-len(rest)]
	keyCap := max(t.maxKey, len(prefix))
	return &Iterator{
		t:       t,
		version: t.version,
		root:    ref,
		base:    base,
		stack:   make([]frame, 0, keyCap+2),
		key:     append(make([]byte, 0, keyCap), base...),
	}
}

// Next moves to the next key. It returns false when the keys are exhausted
// or the iteration failed.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.version != it.t.version {
		it.err = ErrStaleIterator
		return false
	}
	if !it.started {
		it.started = true
		if it.root == 0 {
			return false
		}
		it.push(it.root, len(it.base))
		return it.descend()
	}
	for n := len(it.stack); n > 0; n = len(it.stack) {
		if kid, ok := it.advance(); ok {
			top := it.stack[n-1]
			it.push(kid, top.start+top.plen+1)
			return it.descend()
		}
		it.stack = it.stack[:n-1]
		it.dirty = min(it.dirty, n-1)
	}
	return false
}

func (it *Iterator) push(ref alloc.Ref, start int) {
	mem := it.t.node(ref)
	f := frame{ref: ref, start: start, pos: -1}
	if kindOf(mem) == kindMask {
		f.mask = true
	} else {
		f.plen = int(mem[1])
	}
	it.dirty = min(it.dirty, len(it.stack))
	it.stack = append(it.stack, f)
}

// advance moves the top frame to its next branch and returns the kid there.
func (it *Iterator) advance() (alloc.Ref, bool) {
	var (
		i   = len(it.stack) - 1
		f   = &it.stack[i]
		mem = it.t.node(f.ref)
	)
	it.dirty = min(it.dirty, i)
	if f.mask {
		c, ok := maskNextBranch(mem, f.pos+1)
		if !ok {
			return 0, false
		}
		f.pos = int(c)
		return it.t.maskKid(mem, maskRank(mem, c)), true
	}
	if f.pos+1 >= scanCount(mem) {
		return 0, false
	}
	f.pos++
	return scanKid(mem, f.pos), true
}

// descend follows the smallest branches down to a node holding a value.
func (it *Iterator) descend() bool {
	for {
		top := it.stack[len(it.stack)-1]
		mem := it.t.node(top.ref)

		var v valueSlot
		if top.mask {
			v = it.t.maskValue(mem)
		} else {
			v = it.t.scanValue(mem)
		}
		if v.set {
			it.val = v.val
			return true
		}
		kid, ok := it.advance()
		if !ok {
			it.err = ErrCorrupt
			return false
		}
		it.push(kid, top.start+top.plen+1)
	}
}

// Key returns the current key. The slice is reused by the next call to Next.
func (it *Iterator) Key() []byte {
	if len(it.stack) == 0 {
		return nil
	}
	if it.dirty < len(it.stack) {
		it.key = it.key[:it.stack[it.dirty].start]
		for _, f := range it.stack[it.dirty:] {
			mem := it.t.node(f.ref)
			switch {
			case f.mask && f.pos >= 0:
				it.key = append(it.key, byte(f.pos))
			case !f.mask:
				it.key = append(it.key, scanPrefix(mem)...)
				if f.pos >= 0 {
					it.key = append(it.key, scanBranches(mem)[f.pos])
				}
			}
		}
		it.dirty = len(it.stack)
	}
	return it.key
}

// Value returns the current value.
func (it *Iterator) Value() uint64 {
	return it.val
}

func (it *Iterator) Err() error {
	return it.err
}

// Walk calls fn for all keys with a given prefix in ascending order.
// It returns whether all prefixed keys were visited: fn aborts the walk
// by returning false. The key passed to fn is only valid during the call.
func (t *Tree) Walk(prefix []byte, fn func(key []byte, val uint64) bool) bool {
	it := t.IterPrefix(prefix)
	for it.Next() {
		if !fn(it.Key(), it.Value()) {
			return false
		}
	}
	return it.Err() == nil
}

// Keys returns all keys in ascending order.
func (t *Tree) Keys() [][]byte {
	keys := make([][]byte, 0, t.count)
	t.Walk(nil, func(key []byte, _ uint64) bool {
		keys = append(keys, append([]byte(nil), key...))
		return true
	})
	return keys
}
