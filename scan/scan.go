// Package scan implements the byte search primitives used on every radix
// tree comparison.
//
// Each primitive has a byte-at-a-time reference implementation, a portable
// word-at-a-time one and, on amd64, SSE2 and AVX2 ones. The best set the CPU
// supports is selected once at init; setting CDS_SCAN to an implementation
// name (reference, portable, sse2, avx2) overrides the choice.
//
// Implementations may read past len(b) but never past cap(b): callers that
// reserve a gap after their arrays get the wider paths on the tail too.
package scan

import (
	"os"
	"strings"
	"sync/atomic"
)

// EnvVar names the environment variable overriding the selected implementation.
const EnvVar = "CDS_SCAN"

// Impl is a set of the three primitives.
type Impl struct {
	Name string

	// FindBranch returns the first index i with branches[i] == c, else len(branches).
	FindBranch func(c byte, branches []byte) int

	// FindNewBranchPos returns the first index i with branches[i] > c, else len(branches).
	FindNewBranchPos func(c byte, branches []byte) int

	// PrefixFirstDiff returns the first index i with a[i] != b[i],
	// else min(len(a), len(b)).
	PrefixFirstDiff func(a, b []byte) int
}

var (
	Reference = &Impl{
		Name:             "reference",
		FindBranch:       findBranchRef,
		FindNewBranchPos: findNewBranchPosRef,
		PrefixFirstDiff:  prefixFirstDiffRef,
	}
	Portable = &Impl{
		Name:             "portable",
		FindBranch:       findBranchSWAR,
		FindNewBranchPos: findNewBranchPosSWAR,
		PrefixFirstDiff:  prefixFirstDiffSWAR,
	}
)

var active atomic.Pointer[Impl]

func init() {
	active.Store(choose(os.Getenv(EnvVar)))
}

// choose returns the implementation named by force or the best available one.
func choose(force string) *Impl {
	impls := Available()
	if force = strings.ToLower(strings.TrimSpace(force)); force != "" {
		for _, impl := range impls {
			if impl.Name == force {
				return impl
			}
		}
	}
	return impls[len(impls)-1]
}

// Available returns the implementations usable on this CPU, best last.
func Available() []*Impl {
	return append([]*Impl{Reference, Portable}, accelerated()...)
}

// Active returns the selected implementation.
func Active() *Impl {
	return active.Load()
}

// DisableSIMD switches to the portable implementation and returns the one
// active before. It must not race with running scans.
func DisableSIMD() (prev *Impl) {
	return Use(Portable)
}

// Use makes impl the active implementation and returns the one active before.
// Like DisableSIMD, it must not race with running scans.
func Use(impl *Impl) (prev *Impl) {
	return active.Swap(impl)
}

// FindBranch returns the first index of c in branches, else len(branches).
func FindBranch(c byte, branches []byte) int {
	return active.Load().FindBranch(c, branches)
}

// FindNewBranchPos returns the first index holding a byte greater than c,
// else len(branches).
func FindNewBranchPos(c byte, branches []byte) int {
	return active.Load().FindNewBranchPos(c, branches)
}

// PrefixFirstDiff returns the index of the first differing byte of a and b,
// else the length of the shorter one.
func PrefixFirstDiff(a, b []byte) int {
	return active.Load().PrefixFirstDiff(a, b)
}
