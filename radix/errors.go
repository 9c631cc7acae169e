package radix

import (
	"errors"
	"fmt"

	"github.com/aglyzov/go-cds/alloc"
)

var (
	// ErrCapacity indicates an insert of a new key into a full tree.
	ErrCapacity = errors.New("radix: capacity exhausted")

	// ErrKeyTooLong indicates a key longer than the configured limit.
	ErrKeyTooLong = errors.New("radix: key too long")

	// ErrDeleted indicates use of a deleted tree.
	ErrDeleted = errors.New("radix: tree is deleted")

	// ErrStaleIterator indicates the tree changed after the iterator was created.
	ErrStaleIterator = errors.New("radix: tree modified during iteration")

	// ErrCorrupt indicates a broken structural invariant found by Verify.
	ErrCorrupt = errors.New("radix: corrupt tree")
)

// errNoAlloc fails allocations of a batch that must not allocate.
var errNoAlloc = fmt.Errorf("%w: allocation in a no-alloc batch", alloc.ErrOutOfMemory)
