package scan

import (
	"encoding/binary"
	"math/bits"
)

const (
	lo8 uint64 = 0x0101010101010101
	hi8 uint64 = 0x8080808080808080
)

// eqLanes sets the high bit of every byte lane of x equal to the lane of cc
// (cc holds the needle in all lanes). Lanes above the lowest hit may be false
// positives; the lowest set lane is exact.
func eqLanes(x, cc uint64) uint64 {
	v := x ^ cc
	return (v - lo8) &^ v & hi8
}

// gtLanes sets the high bit of every byte lane of x greater than c (unsigned).
func gtLanes(x uint64, c byte) uint64 {
	var (
		low = x &^ hi8
		lim = uint64(c&0x7f+1) * lo8 // per lane 1..128, no carries
		gt7 = ((low | hi8) - lim) & hi8
	)
	if c&0x80 != 0 {
		return x & gt7 & hi8
	}
	return (x | gt7) & hi8
}

// laneMask keeps the lowest n (0 < n < 8) byte lanes.
func laneMask(n int) uint64 {
	return 1<<(uint(n)<<3) - 1
}

func firstLane(m uint64) int {
	return bits.TrailingZeros64(m) >> 3
}

func load(b []byte, i int) uint64 {
	return binary.LittleEndian.Uint64(b[i : i+8])
}

func findBranchSWAR(c byte, b []byte) int {
	var (
		n  = len(b)
		cc = uint64(c) * lo8
		i  = 0
	)
	for ; i+8 <= n; i += 8 {
		if m := eqLanes(load(b, i), cc); m != 0 {
			return i + firstLane(m)
		}
	}
	if i == n {
		return n
	}
	if cap(b)-i >= 8 {
		if m := eqLanes(load(b[:cap(b)], i), cc) & laneMask(n-i); m != 0 {
			return i + firstLane(m)
		}
		return n
	}
	return i + findBranchRef(c, b[i:])
}

func findNewBranchPosSWAR(c byte, b []byte) int {
	var (
		n = len(b)
		i = 0
	)
	for ; i+8 <= n; i += 8 {
		if m := gtLanes(load(b, i), c); m != 0 {
			return i + firstLane(m)
		}
	}
	if i == n {
		return n
	}
	if cap(b)-i >= 8 {
		if m := gtLanes(load(b[:cap(b)], i), c) & laneMask(n-i); m != 0 {
			return i + firstLane(m)
		}
		return n
	}
	return i + findNewBranchPosRef(c, b[i:])
}

func prefixFirstDiffSWAR(a, b []byte) int {
	var (
		n = min(len(a), len(b))
		i = 0
	)
	for ; i+8 <= n; i += 8 {
		if x := load(a, i) ^ load(b, i); x != 0 {
			return i + firstLane(x)
		}
	}
	if i == n {
		return n
	}
	if cap(a)-i >= 8 && cap(b)-i >= 8 {
		if x := (load(a[:cap(a)], i) ^ load(b[:cap(b)], i)) & laneMask(n-i); x != 0 {
			return i + firstLane(x)
		}
		return n
	}
	return i + prefixFirstDiffRef(a[i:n], b[i:n])
}
