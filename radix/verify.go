package radix

import (
	"fmt"
	"io"
	"strings"

	"github.com/hideo55/go-popcount"

	"github.com/aglyzov/go-cds/alloc"
)

// Verify checks the structural invariants of every node. It is meant for
// tests and debugging: it walks the whole tree.
func (t *Tree) Verify() error {
	var (
		values int
		err    error
	)
	fail := func(ref alloc.Ref, format string, args ...any) {
		if err == nil {
			err = fmt.Errorf("%w: node %#x: %s", ErrCorrupt, uint32(ref), fmt.Sprintf(format, args...))
		}
	}
	t.visit(func(ref alloc.Ref, mem []byte, _ int) {
		k := kindOf(mem)
		if mem[0]&(1<<kindShift-1) != 0 {
			fail(ref, "allocator tag bits set in header %#x", mem[0])
		}
		if k == kindMask {
			values += t.verifyMask(ref, mem, fail)
		} else if k <= kindScan128 {
			values += t.verifyScan(ref, mem, fail)
		} else {
			fail(ref, "unexpected %v node in the tree", k)
		}
	})
	if err == nil && values != t.count {
		err = fmt.Errorf("%w: %d values, count is %d", ErrCorrupt, values, t.count)
	}
	return err
}

func (t *Tree) verifyValue(ref alloc.Ref, v valueSlot, fail func(alloc.Ref, string, ...any)) {
	if v.ptr != 0 {
		if k := kindOf(t.a.Bytes(v.ptr, alloc.Class8)); k != kindPtr {
			fail(ref, "value slot points at a %v node", k)
		}
	}
}

func (t *Tree) verifyScan(ref alloc.Ref, mem []byte, fail func(alloc.Ref, string, ...any)) int {
	var (
		n    = scanCount(mem)
		br   = scanBranches(mem)
		v    = t.scanValue(mem)
		size = scanKidsOff(mem) + (refSize+1)*n + int(mem[1])
	)
	if size > kindOf(mem).class().Size() {
		fail(ref, "%d bytes do not fit %v", size, kindOf(mem).class())
	}
	if n > maxScanBranches {
		fail(ref, "%d branches", n)
	}
	if n == 0 && !v.set {
		fail(ref, "no kids and no value")
	}
	for i := 1; i < n; i++ {
		if br[i-1] >= br[i] {
			fail(ref, "branches not ascending: %x", br)
		}
	}
	for i := 0; i < n; i++ {
		if scanKid(mem, i) == 0 {
			fail(ref, "nil kid %d", i)
		}
	}
	t.verifyValue(ref, v, fail)
	if v.set {
		return 1
	}
	return 0
}

func (t *Tree) verifyMask(ref alloc.Ref, mem []byte, fail func(alloc.Ref, string, ...any)) int {
	var (
		n    = maskCount(mem)
		bits int
		v    = t.maskValue(mem)
	)
	for i := 0; i < 4; i++ {
		bits += int(popcount.Count(maskWord(mem, i)))
	}
	if bits != n {
		fail(ref, "%d bits set, count is %d", bits, n)
		return 0
	}
	if n == 0 && !v.set {
		fail(ref, "no kids and no value")
	}
	for i := 0; i < maskMaxNext; i++ {
		next := maskNextRef(mem, i)
		switch {
		case i < nextBlocks(n) && next == 0:
			fail(ref, "missing next block %d for %d kids", i, n)
			return 0
		case i >= nextBlocks(n) && next != 0:
			fail(ref, "stray next block %d for %d kids", i, n)
		case next != 0 && kindOf(t.a.Bytes(next, alloc.Class8)) != kindNext:
			fail(ref, "next block %d is not a next block", i)
		}
	}
	for r := 0; r < n; r++ {
		if t.maskKid(mem, r) == 0 {
			fail(ref, "nil kid of rank %d", r)
		}
	}
	// unused local slots stay clear
	for r := n; r < maskLocal; r++ {
		if t.maskKid(mem, r) != 0 {
			fail(ref, "stale kid of rank %d", r)
		}
	}
	t.verifyValue(ref, v, fail)
	if v.set {
		return 1
	}
	return 0
}

// DebugDump writes the node structure to w.
func (t *Tree) DebugDump(w io.Writer) {
	fmt.Fprintf(w, "TREE count=%d cap=%d max_key=%d compact=%v\n", t.count, t.capacity, t.maxKey, t.compact)
	if t.root != 0 {
		t.dump(w, t.root, "", "  ")
	}
}

func (t *Tree) dump(w io.Writer, ref alloc.Ref, label, indent string) {
	mem := t.node(ref)
	if kindOf(mem) == kindMask {
		img := t.decodeMask(mem)
		fmt.Fprintf(w, "%s%sMASK %#x kids=%d next=%d%s\n",
			indent, label, uint32(ref), len(img.kids), nextBlocks(len(img.kids)), dumpValue(img.value))
		for r, kid := range img.kids {
			t.dump(w, kid, fmt.Sprintf("[%q] ", img.branches[r]), indent+"  ")
		}
		return
	}
	img := t.decodeScan(mem)
	fmt.Fprintf(w, "%s%sSCAN %#x %v prefix=%q%s\n",
		indent, label, uint32(ref), kindOf(mem).class(), img.prefix, dumpValue(img.value))
	for i, kid := range img.kids {
		t.dump(w, kid, fmt.Sprintf("[%q] ", img.branches[i]), indent+"  ")
	}
}

func dumpValue(v valueSlot) string {
	if !v.set {
		return ""
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, " val=%d", v.val)
	if v.ptr != 0 {
		fmt.Fprintf(&buf, " (via ptr %#x)", uint32(v.ptr))
	}
	return buf.String()
}
