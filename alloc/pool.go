package alloc

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/go-units"
	"go.uber.org/multierr"
)

const (
	slabShift      = 16 // 64 KiB slabs
	slabSize       = 1 << slabShift
	slabWordBits   = slabShift - wordShift
	slabWordMask   = 1<<slabWordBits - 1
	superWordShift = 4 // 16 words per superblock
	sbPerSlab      = slabSize / SuperblockSize
	sbUsable       = sbPerSlab - 1 // the last superblock is the over-read gap

	maxWordBits = 29 // Refs never exceed 4 GiB of pool memory
	maxSlabs    = 1 << (maxWordBits - slabWordBits)
)

// Source supplies zeroed 128-byte aligned superblocks.
type Source interface {
	AllocSuperblock() (Ref, error)
	FreeSuperblock(ref Ref)
	// Bytes returns size bytes of memory at ref. The slice capacity
	// extends at least one word past the end.
	Bytes(ref Ref, size int) []byte
}

type slab struct {
	mem   []byte
	unmap func() error
	free  [sbPerSlab / 64]uint64 // superblocks on the free list
}

// Pool is a Source carving superblocks out of 64 KiB slabs.
// It is not safe for concurrent use.
type Pool struct {
	slabs  []*slab
	free   []Ref
	bump   int // next unused superblock in the newest slab
	live   int
	max    int
	mmap   bool
	closed bool
	log    *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMaxSuperblocks limits the number of live superblocks (n <= 0 means no limit).
func WithMaxSuperblocks(n int) PoolOption {
	return func(p *Pool) {
		p.max = n
	}
}

// WithMmap backs slabs with anonymous memory mappings where the platform has them.
func WithMmap() PoolOption {
	return func(p *Pool) {
		p.mmap = true
	}
}

// WithLogger sets the logger used for slab growth and exhaustion events.
func WithLogger(log *slog.Logger) PoolOption {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{log: discard}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AllocSuperblock returns a zeroed superblock.
func (p *Pool) AllocSuperblock() (Ref, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if p.max > 0 && p.live >= p.max {
		p.log.Warn("alloc: superblock limit reached", "limit", p.max)
		return 0, ErrOutOfMemory
	}
	if l := len(p.free); l > 0 {
		ref := p.free[l-1]
		p.free = p.free[:l-1]
		s, idx := p.locate(ref)
		s.free[idx>>6] &^= 1 << (idx & 63)
		clear(s.mem[idx*SuperblockSize : (idx+1)*SuperblockSize])
		p.live++
		return ref, nil
	}
	if len(p.slabs) == 0 || p.bump == sbUsable {
		if err := p.grow(); err != nil {
			return 0, err
		}
	}
	ref := Ref(len(p.slabs)-1)<<slabWordBits | Ref(p.bump)<<superWordShift
	p.bump++
	p.live++
	return ref, nil
}

func (p *Pool) grow() error {
	if len(p.slabs) == maxSlabs {
		p.log.Warn("alloc: address space exhausted", "slabs", len(p.slabs))
		return ErrOutOfMemory
	}
	s := &slab{}
	if p.mmap {
		mem, unmap, err := mapSlab(slabSize)
		if err != nil {
			p.log.Warn("alloc: mmap failed", "error", err)
			return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
		}
		s.mem, s.unmap = mem, unmap
	} else {
		s.mem = make([]byte, slabSize)
	}
	p.slabs = append(p.slabs, s)
	p.bump = 0
	if len(p.slabs) == 1 {
		p.bump = 1 // superblock 0 of slab 0 stays reserved: Ref 0 is nil
	}
	p.log.Debug("alloc: new slab",
		"slab", len(p.slabs)-1,
		"mmap", s.unmap != nil,
		"reserved", units.BytesSize(float64(p.Reserved())),
	)
	return nil
}

// FreeSuperblock returns a superblock to the pool. It panics on a ref
// the pool never handed out or one that is already free.
func (p *Pool) FreeSuperblock(ref Ref) {
	if ref == 0 || ref&(1<<superWordShift-1) != 0 {
		panic(fmt.Sprintf("alloc: bad superblock ref %#x", uint32(ref)))
	}
	s, idx := p.locate(ref)
	if s == nil || (int(ref>>slabWordBits) == len(p.slabs)-1 && idx >= p.bump) {
		panic(fmt.Sprintf("alloc: foreign superblock ref %#x", uint32(ref)))
	}
	if s.free[idx>>6]&(1<<(idx&63)) != 0 {
		panic(fmt.Sprintf("alloc: double free of superblock %#x", uint32(ref)))
	}
	s.free[idx>>6] |= 1 << (idx & 63)
	p.free = append(p.free, ref)
	p.live--
}

// Bytes returns size bytes at ref with capacity up to the end of its slab.
func (p *Pool) Bytes(ref Ref, size int) []byte {
	mem := p.slabs[ref>>slabWordBits].mem
	off := int(ref&slabWordMask) << wordShift
	return mem[off : off+size : len(mem)]
}

func (p *Pool) locate(ref Ref) (*slab, int) {
	i := int(ref >> slabWordBits)
	if i >= len(p.slabs) {
		return nil, 0
	}
	idx := int(ref&slabWordMask) >> superWordShift
	if idx >= sbUsable {
		return nil, 0
	}
	return p.slabs[i], idx
}

// Live returns the number of superblocks handed out and not yet freed.
func (p *Pool) Live() int {
	return p.live
}

// Reserved returns the number of bytes held in slabs.
func (p *Pool) Reserved() int64 {
	return int64(len(p.slabs)) * slabSize
}

// Reset forgets all superblocks, keeping the first slab for reuse.
// Refs handed out before Reset must not be used afterwards.
func (p *Pool) Reset() error {
	var err error
	if len(p.slabs) > 1 {
		err = p.release(p.slabs[1:])
		p.slabs = p.slabs[:1]
	}
	if len(p.slabs) == 1 {
		s := p.slabs[0]
		clear(s.mem)
		clear(s.free[:])
		p.bump = 1
	}
	p.free = p.free[:0]
	p.live = 0
	return err
}

// Close releases all slabs. A closed pool fails every allocation.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	err := p.release(p.slabs)
	p.slabs = nil
	p.free = nil
	p.live = 0
	p.closed = true
	return err
}

func (p *Pool) release(slabs []*slab) (err error) {
	for i, s := range slabs {
		if s.unmap != nil {
			err = multierr.Append(err, s.unmap())
		}
		slabs[i] = nil
	}
	return err
}

// String describes the pool usage.
func (p *Pool) String() string {
	return fmt.Sprintf("pool{slabs=%d reserved=%s live=%d free=%d}",
		len(p.slabs), units.BytesSize(float64(p.Reserved())), p.live, len(p.free))
}
