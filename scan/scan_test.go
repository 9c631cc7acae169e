package scan

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxLen = 128

// arrays returns test inputs of length n: tight ones (cap == len) and
// padded ones whose spare capacity holds garbage.
func arrays(rnd *rand.Rand, n int) (out [][]byte) {
	fill := func(f func(i int) byte) {
		tight := make([]byte, n)
		for i := range tight {
			tight[i] = f(i)
		}
		padded := make([]byte, n, n+40)
		copy(padded, tight)
		// garbage beyond len must never be reported
		rnd.Read(padded[n:cap(padded)])
		out = append(out, tight, padded)
	}
	fill(func(int) byte { return byte(rnd.Intn(256)) })
	fill(func(i int) byte { return byte(i * 255 / max(n, 1)) }) // sorted
	fill(func(int) byte { return 0xFF })
	fill(func(int) byte { return 0x00 })
	fill(func(i int) byte { return byte(0x7F + i%3) })
	return out
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	impls := Available()

	require.GreaterOrEqual(t, len(impls), 2)
	assert.Equal(t, Reference, impls[0])
	assert.Equal(t, Portable, impls[1])
	assert.NotNil(t, Active())

	assert.Equal(t, impls[len(impls)-1], choose(""))
	assert.Equal(t, Portable, choose(" Portable "))
	assert.Equal(t, Reference, choose("reference"))
	assert.Equal(t, impls[len(impls)-1], choose("no-such-impl"))
}

func TestFindBranch(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(1234567890))

	for _, impl := range Available()[1:] {
		impl := impl

		t.Run(impl.Name, func(t *testing.T) {
			for n := 0; n <= maxLen; n++ {
				for _, b := range arrays(rnd, n) {
					for c := 0; c < 256; c++ {
						exp := findBranchRef(byte(c), b)
						got := impl.FindBranch(byte(c), b)
						if exp != got {
							require.Equal(t, exp, got, "c=%#x n=%d cap=%d b=%x", c, n, cap(b), b)
						}
					}
				}
			}
		})
	}
}

func TestFindNewBranchPos(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(1234567890))

	for _, impl := range Available()[1:] {
		impl := impl

		t.Run(impl.Name, func(t *testing.T) {
			for n := 0; n <= maxLen; n++ {
				for _, b := range arrays(rnd, n) {
					for c := 0; c < 256; c++ {
						exp := findNewBranchPosRef(byte(c), b)
						got := impl.FindNewBranchPos(byte(c), b)
						if exp != got {
							require.Equal(t, exp, got, "c=%#x n=%d cap=%d b=%x", c, n, cap(b), b)
						}
					}
				}
			}
		})
	}
}

func TestPrefixFirstDiff(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(1234567890))

	for _, impl := range Available()[1:] {
		impl := impl

		t.Run(impl.Name, func(t *testing.T) {
			for n := 0; n <= maxLen; n++ {
				for _, a := range arrays(rnd, n) {
					// every single differing position, plus none
					for k := 0; k <= n; k++ {
						b := make([]byte, n, n+rnd.Intn(40))
						copy(b, a)
						rnd.Read(b[n:cap(b)])
						if k < n {
							b[k] ^= byte(1 + rnd.Intn(255))
						}
						for _, pair := range [][2][]byte{{a, b}, {b, a}, {a[:k], b}, {a, b[:k]}} {
							exp := prefixFirstDiffRef(pair[0], pair[1])
							got := impl.PrefixFirstDiff(pair[0], pair[1])
							if exp != got {
								require.Equal(t, exp, got, "k=%d a=%x b=%x", k, pair[0], pair[1])
							}
						}
					}
				}
			}
		})
	}
}

func TestDisableSIMD(t *testing.T) {
	prev := DisableSIMD()
	defer active.Store(prev)

	assert.Equal(t, Portable, Active())
	assert.Equal(t, 1, FindBranch('b', []byte("abc")))
	assert.Equal(t, 2, FindNewBranchPos('b', []byte("abc")))
	assert.Equal(t, 2, PrefixFirstDiff([]byte("abc"), []byte("abd")))

	assert.Equal(t, Portable, Use(Reference))
	assert.Equal(t, Reference, Active())
	assert.Equal(t, 1, FindBranch('b', []byte("abc")))
}

func TestPackageLevel(t *testing.T) {
	t.Parallel()

	for _, tcase := range []*struct {
		C      byte
		Branch string
		ExpPos int
		ExpNew int
	}{
		{'a', "", 0, 0},
		{'a', "a", 0, 1},
		{'b', "acd", 3, 1},
		{0xFF, "\x00\x7f\x80\xfe\xff", 4, 5},
		{0x80, "\x00\x7f\x80\xfe\xff", 2, 3},
		{0x7F, "\x00\x7f\x80\xfe\xff", 1, 2},
		{0x00, "\x00\x7f\x80\xfe\xff", 0, 1},
	} {
		var (
			tcase = tcase
			name  = fmt.Sprintf("%#x in %q", tcase.C, tcase.Branch)
		)

		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tcase.ExpPos, FindBranch(tcase.C, []byte(tcase.Branch)))
			assert.Equal(t, tcase.ExpNew, FindNewBranchPos(tcase.C, []byte(tcase.Branch)))
		})
	}
}
