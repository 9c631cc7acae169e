package alloc

import "fmt"

// Ref addresses an 8-byte word of allocator memory. The zero Ref is nil.
type Ref uint32

// Class is a block size class: a block of Class c holds 8<<c bytes.
type Class uint8

const (
	Class8 Class = iota
	Class16
	Class32
	Class64
	Class128

	// ClassSuper is the superblock class served by a Source.
	ClassSuper = Class128

	// SuperblockSize is the byte size of a superblock.
	SuperblockSize = 8 << ClassSuper

	wordShift = 3
)

// Size returns the byte size of a block of the class.
func (c Class) Size() int {
	return 8 << c
}

// Words returns the word size of a block of the class.
func (c Class) Words() Ref {
	return 1 << c
}

func (c Class) String() string {
	return fmt.Sprintf("class%d(%dB)", uint8(c), c.Size())
}

// ClassFor returns the smallest class fitting size bytes.
// The second result is false when size exceeds a superblock.
func ClassFor(size int) (Class, bool) {
	for c := Class8; c <= ClassSuper; c++ {
		if size <= c.Size() {
			return c, true
		}
	}
	return ClassSuper, false
}
