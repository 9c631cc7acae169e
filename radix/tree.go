package radix

import (
	"log/slog"
	"math/bits"

	"github.com/aglyzov/go-cds/alloc"
	"github.com/aglyzov/go-cds/scan"
)

// Tree maps byte-string keys to 64-bit values.
//
// A Tree is not safe for concurrent use: mutations need external
// synchronization, concurrent Find calls on an unchanging tree are fine.
type Tree struct {
	root      alloc.Ref
	count     int
	capacity  int
	maxKey    int // the longest key inserted so far
	maxKeyLen int
	version   uint64
	narrow    bool // long values always go through pointer-prefix nodes
	compact   bool
	deleted   bool

	a    alloc.Allocator
	pool *alloc.Pool // owned, closed by Delete
	log  *slog.Logger

	scratch batch
	path    []step
}

// Match is a result of FindNearest.
type Match struct {
	Key []byte
	Val uint64
	Len int // length of the common prefix of Key and the searched key
}

// New returns an empty tree holding at most capacity keys (0 means no limit).
func New(capacity int, opts ...Option) *Tree {
	return Init(&Tree{}, capacity, opts...)
}

// Init initializes t in place and returns it.
func Init(t *Tree, capacity int, opts ...Option) *Tree {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	*t = Tree{
		capacity:  max(capacity, 0),
		maxKeyLen: cfg.maxKeyLen,
		narrow:    bits.UintSize == 32,
		compact:   cfg.compact,
		log:       cfg.log,
	}
	switch {
	case cfg.allocator != nil:
		t.a = cfg.allocator
	case cfg.compact:
		t.a = alloc.NewDirect(0)
	case cfg.source != nil:
		t.a = alloc.NewBuddy(cfg.source)
	default:
		t.pool = alloc.NewPool(alloc.WithLogger(cfg.log))
		t.a = alloc.NewBuddy(t.pool)
	}
	return t
}

// Len returns the number of keys in the tree.
func (t *Tree) Len() int {
	return t.count
}

// Cap returns the capacity given to New (0 means no limit).
func (t *Tree) Cap() int {
	return t.capacity
}

func (t *Tree) Empty() bool {
	return t.root == 0
}

// Find returns the value stored under key.
func (t *Tree) Find(key []byte) (uint64, bool) {
	ref, rest := t.root, key
	for ref != 0 {
		mem := t.node(ref)
		if kindOf(mem) == kindMask {
			if len(rest) == 0 {
				v := t.maskValue(mem)
				return v.val, v.set
			}
			if !maskHas(mem, rest[0]) {
				break
			}
			ref, rest = t.maskKid(mem, maskRank(mem, rest[0])), rest[1:]
			continue
		}
		prefix := scanPrefix(mem)
		if len(rest) < len(prefix) || scan.PrefixFirstDiff(prefix, rest) < len(prefix) {
			break
		}
		if rest = rest[len(prefix):]; len(rest) == 0 {
			v := t.scanValue(mem)
			return v.val, v.set
		}
		br := scanBranches(mem)
		i := scan.FindBranch(rest[0], br)
		if i == len(br) {
			break
		}
		ref, rest = scanKid(mem, i), rest[1:]
	}
	return 0, false
}

// FindNearest returns the first key (in key order) sharing the longest
// common prefix with key. It fails on an empty tree only.
func (t *Tree) FindNearest(key []byte) (Match, bool) {
	if t.root == 0 {
		return Match{}, false
	}
	var (
		ref   = t.root
		depth = 0 // key bytes matched above ref
	)
	lcp := func() int {
		mem := t.node(ref)
		if kindOf(mem) == kindMask {
			return 0
		}
		return scan.PrefixFirstDiff(scanPrefix(mem), key[depth:])
	}
	for {
		mem := t.node(ref)
		if kindOf(mem) == kindMask {
			if depth == len(key) || !maskHas(mem, key[depth]) {
				break
			}
			ref = t.maskKid(mem, maskRank(mem, key[depth]))
			depth++
			continue
		}
		prefix := scanPrefix(mem)
		if d := lcp(); d < len(prefix) || depth+d == len(key) {
			break
		}
		br := scanBranches(mem)
		i := scan.FindBranch(key[depth+len(prefix)], br)
		if i == len(br) {
			break
		}
		ref = scanKid(mem, i)
		depth += len(prefix) + 1
	}
	m := Match{Len: depth + lcp()}
	m.Key, m.Val = t.first(ref, append(make([]byte, 0, t.maxKey), key[:depth]...))
	return m, true
}

// first appends to buf the rest of the smallest key under ref.
func (t *Tree) first(ref alloc.Ref, buf []byte) ([]byte, uint64) {
	for {
		mem := t.node(ref)
		if kindOf(mem) == kindMask {
			if v := t.maskValue(mem); v.set {
				return buf, v.val
			}
			c, _ := maskNextBranch(mem, 0)
			buf = append(buf, c)
			ref = t.maskKid(mem, 0)
			continue
		}
		buf = append(buf, scanPrefix(mem)...)
		if v := t.scanValue(mem); v.set {
			return buf, v.val
		}
		buf = append(buf, scanBranches(mem)[0])
		ref = scanKid(mem, 0)
	}
}

// Clear erases all keys.
func (t *Tree) Clear() {
	if t.root == 0 {
		return
	}
	// walk the tree without function recursion
	to_visit := append(make([]alloc.Ref, 0, 64), t.root)

	for l := len(to_visit); l > 0; l = len(to_visit) {
		ref := to_visit[l-1]
		to_visit = to_visit[:l-1]

		mem := t.node(ref)
		switch k := kindOf(mem); k {
		case kindMask:
			for r, n := 0, maskCount(mem); r < n; r++ {
				to_visit = append(to_visit, t.maskKid(mem, r))
			}
			if v := t.maskValue(mem); v.ptr != 0 {
				t.a.Free(v.ptr, alloc.Class16)
			}
			for i := 0; i < maskMaxNext; i++ {
				if next := maskNextRef(mem, i); next != 0 {
					t.a.Free(next, alloc.Class128)
				}
			}
			t.a.Free(ref, alloc.Class128)
		default:
			for i, n := 0, scanCount(mem); i < n; i++ {
				to_visit = append(to_visit, scanKid(mem, i))
			}
			if v := t.scanValue(mem); v.ptr != 0 {
				t.a.Free(v.ptr, alloc.Class16)
			}
			t.a.Free(ref, k.class())
		}
	}
	t.root = 0
	t.count = 0
	t.version++
}

// Delete clears the tree and releases the memory it owns. A deleted tree
// stays empty and rejects inserts.
func (t *Tree) Delete() error {
	if t.deleted {
		return ErrDeleted
	}
	t.Clear()
	t.deleted = true
	if t.pool != nil {
		return t.pool.Close()
	}
	return nil
}

// Stats describes the tree shape and its allocator usage.
type Stats struct {
	Keys       int
	ScanNodes  int
	MaskNodes  int
	NextBlocks int
	PtrNodes   int
	Depth      int
	Alloc      alloc.Stats
}

// Stats walks the whole tree.
func (t *Tree) Stats() Stats {
	st := Stats{Keys: t.count, Alloc: t.a.Stats()}
	t.visit(func(ref alloc.Ref, mem []byte, depth int) {
		st.Depth = max(st.Depth, depth)
		var v valueSlot
		if kindOf(mem) == kindMask {
			st.MaskNodes++
			st.NextBlocks += nextBlocks(maskCount(mem))
			v = t.maskValue(mem)
		} else {
			st.ScanNodes++
			v = t.scanValue(mem)
		}
		if v.ptr != 0 {
			st.PtrNodes++
		}
	})
	return st
}

// visit calls fn for every node with its depth in nodes.
func (t *Tree) visit(fn func(ref alloc.Ref, mem []byte, depth int)) {
	if t.root == 0 {
		return
	}
	type item struct {
		ref   alloc.Ref
		depth int
	}
	to_visit := []item{{t.root, 1}}

	for l := len(to_visit); l > 0; l = len(to_visit) {
		it := to_visit[l-1]
		to_visit = to_visit[:l-1]

		mem := t.node(it.ref)
		fn(it.ref, mem, it.depth)

		if kindOf(mem) == kindMask {
			for r := maskCount(mem) - 1; r >= 0; r-- {
				to_visit = append(to_visit, item{t.maskKid(mem, r), it.depth + 1})
			}
			continue
		}
		for i := scanCount(mem) - 1; i >= 0; i-- {
			to_visit = append(to_visit, item{scanKid(mem, i), it.depth + 1})
		}
	}
}
