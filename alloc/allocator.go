package alloc

// Allocator hands out blocks of power-of-two classes.
// Implementations are not safe for concurrent use.
type Allocator interface {
	// Alloc returns a zeroed block of the class.
	Alloc(c Class) (Ref, error)
	// Free releases a block allocated with the same class.
	Free(ref Ref, c Class)
	// Bytes returns the memory of a block. The slice capacity extends
	// at least one word past the end of the block.
	Bytes(ref Ref, c Class) []byte
	Stats() Stats
}
