// Package alloc supplies node memory for the radix tree.
//
// Memory is handed out in power-of-two blocks addressed by a 32-bit Ref
// (an index of an 8-byte word, 0 is nil):
//
//	Class  Size  Words
//	  0      8     1
//	  1     16     2
//	  2     32     4
//	  3     64     8
//	  4    128    16   superblock
//
// A Source (the node pool) supplies zeroed, 128-byte aligned superblocks.
// Pool is the default Source: it carves superblocks out of 64 KiB slabs
// that live on the Go heap or in anonymous mmap regions.
//
//	slab:  | sb 0 | sb 1 | ... | sb 510 | gap |
//
// The last superblock of every slab is never handed out, so a scan over
// the tail of any block may safely read one word past it.
//
// Buddy splits superblocks into smaller blocks and coalesces them back.
// A free block keeps its free-list links in its first word:
//
//	63          32 31           3  2   1..0
//	+-------------+--------------+----+-----+
//	|    next     |     prev     |free|class|
//	+-------------+--------------+----+-----+
//
// Live blocks must keep the low three bits of their first byte clear.
//
// Direct serves every block with its own heap allocation (compact mode).
package alloc
