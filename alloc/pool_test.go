package alloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AllocSuperblock(t *testing.T) {
	t.Parallel()

	p := NewPool()

	seen := make(map[Ref]bool)
	for i := 0; i < 2*sbUsable; i++ {
		ref, err := p.AllocSuperblock()
		require.NoError(t, err)
		require.NotZero(t, ref)
		require.Zero(t, ref%16, "superblocks are 128-byte aligned")
		require.False(t, seen[ref], "ref %#x handed out twice", ref)
		seen[ref] = true

		mem := p.Bytes(ref, SuperblockSize)
		require.Len(t, mem, SuperblockSize)
		require.GreaterOrEqual(t, cap(mem)-len(mem), SuperblockSize, "the slab gap follows any superblock")
	}
	assert.Equal(t, 2*sbUsable, p.Live())
	assert.Equal(t, int64(3*slabSize), p.Reserved())
}

func TestPool_ReuseZeroes(t *testing.T) {
	t.Parallel()

	p := NewPool()

	ref, err := p.AllocSuperblock()
	require.NoError(t, err)

	mem := p.Bytes(ref, SuperblockSize)
	for i := range mem {
		mem[i] = 0xAA
	}
	p.FreeSuperblock(ref)

	again, err := p.AllocSuperblock()
	require.NoError(t, err)
	assert.Equal(t, ref, again)
	assert.Equal(t, make([]byte, SuperblockSize), p.Bytes(again, SuperblockSize))
}

func TestPool_Limit(t *testing.T) {
	t.Parallel()

	p := NewPool(WithMaxSuperblocks(2))

	a, err := p.AllocSuperblock()
	require.NoError(t, err)
	_, err = p.AllocSuperblock()
	require.NoError(t, err)

	_, err = p.AllocSuperblock()
	assert.ErrorIs(t, err, ErrOutOfMemory)

	p.FreeSuperblock(a)

	_, err = p.AllocSuperblock()
	assert.NoError(t, err)
}

func TestPool_Misuse(t *testing.T) {
	t.Parallel()

	p := NewPool()

	ref, err := p.AllocSuperblock()
	require.NoError(t, err)

	assert.Panics(t, func() { p.FreeSuperblock(0) })
	assert.Panics(t, func() { p.FreeSuperblock(ref + 1) })
	assert.Panics(t, func() { p.FreeSuperblock(ref + 16) }, "never handed out")

	p.FreeSuperblock(ref)
	assert.Panics(t, func() { p.FreeSuperblock(ref) })
}

func TestPool_Reset(t *testing.T) {
	t.Parallel()

	p := NewPool()
	for i := 0; i < sbUsable+10; i++ {
		_, err := p.AllocSuperblock()
		require.NoError(t, err)
	}
	require.NoError(t, p.Reset())

	assert.Zero(t, p.Live())
	assert.Equal(t, int64(slabSize), p.Reserved())

	ref, err := p.AllocSuperblock()
	require.NoError(t, err)
	assert.Equal(t, Ref(16), ref)
}

func TestPool_Mmap(t *testing.T) {
	t.Parallel()

	p := NewPool(WithMmap())

	ref, err := p.AllocSuperblock()
	require.NoError(t, err)

	mem := p.Bytes(ref, SuperblockSize)
	assert.Equal(t, make([]byte, SuperblockSize), mem)
	mem[0], mem[SuperblockSize-1] = 1, 2

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.AllocSuperblock()
	assert.True(t, errors.Is(err, ErrClosed))
}
