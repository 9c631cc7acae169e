package alloc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuddy_Split(t *testing.T) {
	t.Parallel()

	var (
		p = NewPool()
		a = NewBuddy(p)
	)

	assert.Same(t, p, a.Source())

	ref, err := a.Alloc(Class8)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Live())
	// 128 = 8 + 8 + 16 + 32 + 64
	assert.Equal(t, [4]int{1, 1, 1, 1}, a.FreeBlocks())

	// the free 8-byte buddy comes next
	next, err := a.Alloc(Class8)
	require.NoError(t, err)
	assert.Equal(t, ref^1, next)
	assert.Equal(t, [4]int{0, 1, 1, 1}, a.FreeBlocks())

	// the 64-byte half is the upper half of the superblock
	big, err := a.Alloc(Class64)
	require.NoError(t, err)
	assert.Equal(t, ref+8, big)
	assert.Equal(t, 1, p.Live())
}

func TestBuddy_Coalesce(t *testing.T) {
	t.Parallel()

	var (
		p = NewPool()
		a = NewBuddy(p)
	)

	var refs []Ref
	for i := 0; i < 16; i++ {
		ref, err := a.Alloc(Class8)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	require.Equal(t, 1, p.Live())
	require.Equal(t, [4]int{}, a.FreeBlocks())

	// free every other block first so nothing can merge
	for i := 0; i < 16; i += 2 {
		a.Free(refs[i], Class8)
	}
	assert.Equal(t, [4]int{8, 0, 0, 0}, a.FreeBlocks())

	for i := 1; i < 16; i += 2 {
		a.Free(refs[i], Class8)
	}
	assert.Equal(t, [4]int{}, a.FreeBlocks())
	assert.Zero(t, p.Live(), "a fully coalesced superblock goes back to the pool")
	assert.Zero(t, a.Stats().Superblocks)
	assert.Zero(t, a.Stats().InUse)
}

func TestBuddy_Superblock(t *testing.T) {
	t.Parallel()

	var (
		p = NewPool()
		a = NewBuddy(p)
	)

	ref, err := a.Alloc(Class128)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Live())
	assert.Equal(t, [4]int{}, a.FreeBlocks())

	a.Free(ref, Class128)
	assert.Zero(t, p.Live())
}

func TestBuddy_DoubleFree(t *testing.T) {
	t.Parallel()

	a := NewBuddy(NewPool())

	x, err := a.Alloc(Class16)
	require.NoError(t, err)
	_, err = a.Alloc(Class16)
	require.NoError(t, err)

	a.Free(x, Class16)
	assert.Panics(t, func() { a.Free(x, Class16) })
	assert.Panics(t, func() { a.Free(0, Class16) })
}

func TestBuddy_OutOfMemory(t *testing.T) {
	t.Parallel()

	a := NewBuddy(NewPool(WithMaxSuperblocks(1)))

	for i := 0; i < 2; i++ {
		_, err := a.Alloc(Class64)
		require.NoError(t, err)
	}
	_, err := a.Alloc(Class8)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestBuddy_Random(t *testing.T) {
	t.Parallel()

	type block struct {
		ref Ref
		c   Class
	}

	var (
		rnd  = rand.New(rand.NewSource(1234567890))
		p    = NewPool()
		a    = NewBuddy(p)
		live []block
		own  = make(map[Ref]block)
	)

	for i := 0; i < 20000; i++ {
		if len(live) > 0 && rnd.Intn(3) == 0 {
			j := rnd.Intn(len(live))
			b := live[j]
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]

			// contents survive until free
			mem := a.Bytes(b.ref, b.c)
			for k := range mem {
				require.Equal(t, byte(b.ref)&^7, mem[k])
			}
			for w := Ref(0); w < b.c.Words(); w++ {
				delete(own, b.ref+w)
			}
			a.Free(b.ref, b.c)
			continue
		}
		c := Class(rnd.Intn(5))
		ref, err := a.Alloc(c)
		require.NoError(t, err)

		mem := a.Bytes(ref, c)
		for k := range mem {
			require.Zero(t, mem[k])
			mem[k] = byte(ref) &^ 7
		}
		b := block{ref, c}
		for w := Ref(0); w < c.Words(); w++ {
			_, taken := own[ref+w]
			require.False(t, taken, "word %#x handed out twice", ref+w)
			own[ref+w] = b
		}
		live = append(live, b)
	}
	for _, b := range live {
		a.Free(b.ref, b.c)
	}
	assert.Zero(t, p.Live())
	assert.Equal(t, [4]int{}, a.FreeBlocks())
}
