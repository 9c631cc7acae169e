package radix

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/hideo55/go-popcount"

	"github.com/aglyzov/go-cds/alloc"
)

type kind uint8

const (
	kindScan8   kind = iota // kinds 0..4: scan nodes, kind == class
	kindScan128 kind = 4
	kindPtr     kind = 5
	kindNext    kind = 6
	kindMask    kind = 7

	kindShift = 3
	kindBits  = 0x7
)

const (
	flagValue    byte = 1 << 0
	flagLong     byte = 1 << 1 // 64-bit value inline at offset 8
	flagIndirect byte = 1 << 2 // value slot holds a pointer-prefix node ref

	headerSize = 4
	nodeSize   = alloc.SuperblockSize
	refSize    = 4

	maxScanBranches = 16
	maskDemoteAt    = 8

	maskValueOff  = 4
	maskBitmapOff = 8
	maskLocalOff  = 40
	maskNextOff   = 72
	maskCountOff  = 104
	maskLocal     = 8
	maskMaxNext   = 8

	nextSlotOff = 4
	nextSlots   = 31

	ptrValueOff = 8
)

var le = binary.LittleEndian

func kindOf(mem []byte) kind {
	return kind(mem[0]>>kindShift) & kindBits
}

func (k kind) class() alloc.Class {
	switch {
	case k <= kindScan128:
		return alloc.Class(k)
	case k == kindPtr:
		return alloc.Class16
	}
	return alloc.Class128
}

func (k kind) String() string {
	switch {
	case k <= kindScan128:
		return "scan"
	case k == kindPtr:
		return "ptr"
	case k == kindNext:
		return "next"
	}
	return "mask"
}

// node returns the memory of the node at ref.
func (t *Tree) node(ref alloc.Ref) []byte {
	head := t.a.Bytes(ref, alloc.Class8)
	return t.a.Bytes(ref, kindOf(head).class())
}

func (t *Tree) classOf(ref alloc.Ref) alloc.Class {
	return kindOf(t.a.Bytes(ref, alloc.Class8)).class()
}

// --- values ---

type valueSlot struct {
	val uint64
	set bool
	ptr alloc.Ref // pointer-prefix node holding val
}

func isLong(val uint64) bool {
	return val > math.MaxUint32
}

func (t *Tree) ptrValue(ptr alloc.Ref) uint64 {
	return le.Uint64(t.a.Bytes(ptr, alloc.Class16)[ptrValueOff:])
}

func (t *Tree) writePtr(ptr alloc.Ref, val uint64) {
	mem := t.a.Bytes(ptr, alloc.Class16)
	mem[0] = byte(kindPtr) << kindShift
	le.PutUint64(mem[ptrValueOff:], val)
}

// slotValue decodes a 4-byte value slot at off.
func (t *Tree) slotValue(flags byte, mem []byte, off int) valueSlot {
	if flags&flagValue == 0 {
		return valueSlot{}
	}
	v := le.Uint32(mem[off:])
	if flags&flagIndirect != 0 {
		ptr := alloc.Ref(v)
		return valueSlot{val: t.ptrValue(ptr), set: true, ptr: ptr}
	}
	return valueSlot{val: uint64(v), set: true}
}

// valueBytes is the encoded size of a scan node value slot.
func (t *Tree) valueBytes(v valueSlot) int {
	switch {
	case !v.set:
		return 0
	case isLong(v.val) && v.ptr == 0 && !t.narrow:
		return 12 // 4 bytes of padding keep the value 8-byte aligned
	}
	return 4
}

// planValue allocates or retires the pointer-prefix node of a value about
// to be encoded. Mask nodes store long values indirectly, scan nodes only
// on narrow targets or when a pointer-prefix node already holds the value.
func (t *Tree) planValue(b *batch, v *valueSlot, mask bool) {
	switch {
	case !v.set || !isLong(v.val):
		if v.ptr != 0 {
			b.retire(v.ptr, alloc.Class16)
			v.ptr = 0
		}
	case v.ptr != 0:
		ptr, val := v.ptr, v.val
		b.write(func() { t.writePtr(ptr, val) })
	case mask || t.narrow:
		ptr, val := b.alloc(alloc.Class16), v.val
		v.ptr = ptr
		b.write(func() { t.writePtr(ptr, val) })
	}
}

// --- scan nodes ---

func scanKidsOff(mem []byte) int {
	switch f := mem[3]; {
	case f&flagValue == 0:
		return headerSize
	case f&flagLong != 0:
		return 16
	}
	return 8
}

func scanCount(mem []byte) int {
	return int(mem[2])
}

func scanKid(mem []byte, i int) alloc.Ref {
	return alloc.Ref(le.Uint32(mem[scanKidsOff(mem)+refSize*i:]))
}

func scanPrefix(mem []byte) []byte {
	off := scanKidsOff(mem) + refSize*scanCount(mem)
	return mem[off : off+int(mem[1])]
}

func scanBranches(mem []byte) []byte {
	off := scanKidsOff(mem) + refSize*scanCount(mem) + int(mem[1])
	return mem[off : off+scanCount(mem)]
}

func (t *Tree) scanValue(mem []byte) valueSlot {
	f := mem[3]
	if f&flagValue != 0 && f&flagLong != 0 {
		return valueSlot{val: le.Uint64(mem[8:]), set: true}
	}
	return t.slotValue(f, mem, 4)
}

// scanImage is a decoded scan node detached from node memory.
type scanImage struct {
	prefix   []byte
	branches []byte
	kids     []alloc.Ref
	value    valueSlot
}

func (t *Tree) decodeScan(mem []byte) scanImage {
	n := scanCount(mem)
	img := scanImage{
		prefix:   append([]byte(nil), scanPrefix(mem)...),
		branches: append(make([]byte, 0, n+1), scanBranches(mem)...),
		kids:     make([]alloc.Ref, n, n+1),
		value:    t.scanValue(mem),
	}
	for i := range img.kids {
		img.kids[i] = scanKid(mem, i)
	}
	return img
}

func (t *Tree) scanSize(img scanImage) int {
	return headerSize + t.valueBytes(img.value) + (refSize+1)*len(img.kids) + len(img.prefix)
}

// prefixRoom returns how many prefix bytes fit next to the rest of img.
func (t *Tree) prefixRoom(img scanImage) int {
	return nodeSize - headerSize - t.valueBytes(img.value) - (refSize+1)*len(img.kids)
}

func (t *Tree) encodeScan(ref alloc.Ref, c alloc.Class, img scanImage) {
	mem := t.a.Bytes(ref, c)
	clear(mem)
	mem[0] = byte(c) << kindShift
	mem[1] = byte(len(img.prefix))
	mem[2] = byte(len(img.branches))

	off := headerSize
	if v := img.value; v.set {
		switch {
		case v.ptr != 0:
			mem[3] = flagValue | flagIndirect
			le.PutUint32(mem[4:], uint32(v.ptr))
			off = 8
		case isLong(v.val):
			mem[3] = flagValue | flagLong
			le.PutUint64(mem[8:], v.val)
			off = 16
		default:
			mem[3] = flagValue
			le.PutUint32(mem[4:], uint32(v.val))
			off = 8
		}
	}
	for _, kid := range img.kids {
		le.PutUint32(mem[off:], uint32(kid))
		off += refSize
	}
	off += copy(mem[off:], img.prefix)
	copy(mem[off:], img.branches)
}

// --- mask nodes ---

func maskCount(mem []byte) int {
	return int(le.Uint16(mem[maskCountOff:]))
}

func maskWord(mem []byte, i int) uint64 {
	return le.Uint64(mem[maskBitmapOff+8*i:])
}

func maskHas(mem []byte, c byte) bool {
	return maskWord(mem, int(c>>6))>>(c&63)&1 != 0
}

func maskFlip(mem []byte, c byte) {
	off := maskBitmapOff + 8*int(c>>6)
	le.PutUint64(mem[off:], le.Uint64(mem[off:])^1<<(c&63))
}

// maskRank returns the number of branches below c.
func maskRank(mem []byte, c byte) int {
	idx := int(c >> 6)
	r := popcount.Count(maskWord(mem, idx) & (1<<(c&63) - 1))
	for j := 0; j < idx; j++ {
		r += popcount.Count(maskWord(mem, j))
	}
	return int(r)
}

// maskNextBranch returns the lowest branch byte >= from.
func maskNextBranch(mem []byte, from int) (byte, bool) {
	for i := from >> 6; i < 4 && from < 256; i++ {
		w := maskWord(mem, i)
		if i == from>>6 {
			w &^= 1<<(uint(from)&63) - 1
		}
		if w != 0 {
			return byte(i<<6 + bits.TrailingZeros64(w)), true
		}
	}
	return 0, false
}

// nextBlocks returns the number of next blocks holding n kids.
func nextBlocks(n int) int {
	return (max(n-maskLocal, 0) + nextSlots - 1) / nextSlots
}

func maskNextRef(mem []byte, i int) alloc.Ref {
	return alloc.Ref(le.Uint32(mem[maskNextOff+refSize*i:]))
}

// maskKidSlot returns the memory holding the kid of rank r.
func (t *Tree) maskKidSlot(mem []byte, r int) []byte {
	if r < maskLocal {
		return mem[maskLocalOff+refSize*r:]
	}
	r -= maskLocal
	next := t.a.Bytes(maskNextRef(mem, r/nextSlots), alloc.Class128)
	return next[nextSlotOff+refSize*(r%nextSlots):]
}

func (t *Tree) maskKid(mem []byte, r int) alloc.Ref {
	return alloc.Ref(le.Uint32(t.maskKidSlot(mem, r)))
}

func (t *Tree) setMaskKid(mem []byte, r int, kid alloc.Ref) {
	le.PutUint32(t.maskKidSlot(mem, r), uint32(kid))
}

func (t *Tree) maskValue(mem []byte) valueSlot {
	return t.slotValue(mem[3], mem, maskValueOff)
}

func putMaskValue(mem []byte, v valueSlot) {
	switch {
	case !v.set:
		mem[3] &^= flagValue | flagIndirect
		le.PutUint32(mem[maskValueOff:], 0)
	case v.ptr != 0:
		mem[3] |= flagValue | flagIndirect
		le.PutUint32(mem[maskValueOff:], uint32(v.ptr))
	default:
		mem[3] = mem[3]&^flagIndirect | flagValue
		le.PutUint32(mem[maskValueOff:], uint32(v.val))
	}
}

// maskBranches lists the branch bytes of a mask node in ascending order.
func maskBranches(mem []byte) []byte {
	out := make([]byte, 0, maskCount(mem))
	for c, ok := maskNextBranch(mem, 0); ok; c, ok = maskNextBranch(mem, int(c)+1) {
		out = append(out, c)
	}
	return out
}

// decodeMask returns the mask node as a prefix-less scan image.
func (t *Tree) decodeMask(mem []byte) scanImage {
	img := scanImage{
		branches: maskBranches(mem),
		value:    t.maskValue(mem),
	}
	img.kids = make([]alloc.Ref, len(img.branches))
	for r := range img.kids {
		img.kids[r] = t.maskKid(mem, r)
	}
	return img
}

func (t *Tree) encodeMask(ref alloc.Ref, img scanImage, next []alloc.Ref) {
	mem := t.a.Bytes(ref, alloc.Class128)
	clear(mem)
	mem[0] = byte(kindMask) << kindShift
	putMaskValue(mem, img.value)
	for _, c := range img.branches {
		maskFlip(mem, c)
	}
	le.PutUint16(mem[maskCountOff:], uint16(len(img.kids)))
	for i, nref := range next {
		t.initNext(nref)
		le.PutUint32(mem[maskNextOff+refSize*i:], uint32(nref))
	}
	for r, kid := range img.kids {
		t.setMaskKid(mem, r, kid)
	}
}

func (t *Tree) initNext(ref alloc.Ref) {
	next := t.a.Bytes(ref, alloc.Class128)
	clear(next)
	next[0] = byte(kindNext) << kindShift
}
