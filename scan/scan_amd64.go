//go:build amd64 && !purego

package scan

import (
	"math/bits"

	"golang.org/x/sys/cpu"
)

// Lane mask kernels: bit i of the result is set when lane i matches.
// p and q must point at 16 (or 32) readable bytes.

//go:noescape
func maskEq16(p *byte, c uint64) uint64

//go:noescape
func maskGt16(p *byte, c uint64) uint64

//go:noescape
func maskNe16(p, q *byte) uint64

//go:noescape
func maskEq32(p *byte, c uint64) uint64

//go:noescape
func maskGt32(p *byte, c uint64) uint64

//go:noescape
func maskNe32(p, q *byte) uint64

var (
	sse2 = &Impl{
		Name:             "sse2",
		FindBranch:       findBranchSSE2,
		FindNewBranchPos: findNewBranchPosSSE2,
		PrefixFirstDiff:  prefixFirstDiffSSE2,
	}
	avx2 = &Impl{
		Name:             "avx2",
		FindBranch:       findBranchAVX2,
		FindNewBranchPos: findNewBranchPosAVX2,
		PrefixFirstDiff:  prefixFirstDiffAVX2,
	}
)

func accelerated() (impls []*Impl) {
	if cpu.X86.HasSSE2 {
		impls = append(impls, sse2)
	}
	if cpu.X86.HasAVX2 {
		impls = append(impls, avx2)
	}
	return impls
}

// tail keeps the lanes below n when fewer than w remain.
func tail(m uint64, n, w int) uint64 {
	if n < w {
		m &= 1<<uint(n) - 1
	}
	return m
}

func findBranchSSE2(c byte, b []byte) int {
	n, i := len(b), 0
	for ; i < n && cap(b)-i >= 16; i += 16 {
		if m := tail(maskEq16(&b[i], uint64(c)), n-i, 16); m != 0 {
			return i + bits.TrailingZeros64(m)
		}
	}
	if i >= n {
		return n
	}
	return i + findBranchSWAR(c, b[i:])
}

func findNewBranchPosSSE2(c byte, b []byte) int {
	n, i := len(b), 0
	for ; i < n && cap(b)-i >= 16; i += 16 {
		if m := tail(maskGt16(&b[i], uint64(c)), n-i, 16); m != 0 {
			return i + bits.TrailingZeros64(m)
		}
	}
	if i >= n {
		return n
	}
	return i + findNewBranchPosSWAR(c, b[i:])
}

func prefixFirstDiffSSE2(a, b []byte) int {
	n, i := min(len(a), len(b)), 0
	for ; i < n && cap(a)-i >= 16 && cap(b)-i >= 16; i += 16 {
		if m := tail(maskNe16(&a[i], &b[i]), n-i, 16); m != 0 {
			return i + bits.TrailingZeros64(m)
		}
	}
	if i >= n {
		return n
	}
	return i + prefixFirstDiffSWAR(a[i:], b[i:])
}

func findBranchAVX2(c byte, b []byte) int {
	n, i := len(b), 0
	for ; i < n && cap(b)-i >= 32; i += 32 {
		if m := tail(maskEq32(&b[i], uint64(c)), n-i, 32); m != 0 {
			return i + bits.TrailingZeros64(m)
		}
	}
	if i >= n {
		return n
	}
	return i + findBranchSSE2(c, b[i:])
}

func findNewBranchPosAVX2(c byte, b []byte) int {
	n, i := len(b), 0
	for ; i < n && cap(b)-i >= 32; i += 32 {
		if m := tail(maskGt32(&b[i], uint64(c)), n-i, 32); m != 0 {
			return i + bits.TrailingZeros64(m)
		}
	}
	if i >= n {
		return n
	}
	return i + findNewBranchPosSSE2(c, b[i:])
}

func prefixFirstDiffAVX2(a, b []byte) int {
	n, i := min(len(a), len(b)), 0
	for ; i < n && cap(a)-i >= 32 && cap(b)-i >= 32; i += 32 {
		if m := tail(maskNe32(&a[i], &b[i]), n-i, 32); m != 0 {
			return i + bits.TrailingZeros64(m)
		}
	}
	if i >= n {
		return n
	}
	return i + prefixFirstDiffSSE2(a[i:], b[i:])
}
