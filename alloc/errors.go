package alloc

import "errors"

var (
	// ErrOutOfMemory indicates the source cannot supply another superblock
	// or the allocator reached its configured limit.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrClosed indicates the pool has been closed.
	ErrClosed = errors.New("alloc: pool is closed")
)
