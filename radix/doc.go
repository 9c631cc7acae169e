// Package radix implements a byte-string keyed radix tree (a Patricia trie
// variant) over packed nodes of 8 to 128 bytes handed out by an alloc.Allocator.
//
// Every node starts with a 4-byte header:
//
//	byte 0: kind << 3 (the low three bits stay clear for the allocator)
//	byte 1: prefix length (scan nodes)
//	byte 2: branch count (scan nodes)
//	byte 3: flags (value, long value, indirect value)
//
// Kinds 0..4 are scan nodes whose kind equals their block class:
//
//	+--------+-------------+-------------+--------+----------+
//	| header | value (0/4/ | kids        | prefix | branches |
//	|        | 12 bytes)   | 4 bytes * n |        | n bytes  |
//	+--------+-------------+-------------+--------+----------+
//
// A scan node consumes its prefix bytes and then branches on one byte into
// at most 16 children. Branch bytes are sorted and sit at the end of the
// node so the scan primitives may read past them into allocator slack.
//
// Kind 7 is a 128-byte mask node branching on up to 256 bytes:
//
//	offset   0: header
//	offset   4: value (4 bytes)
//	offset   8: bitmap [4]uint64
//	offset  40: 8 local kids
//	offset  72: 8 next block refs
//	offset 104: kid count (uint16)
//
// The kid of rank r lives in local slot r when r < 8 and in slot (r-8)%31 of
// next block (r-8)/31 otherwise. Next blocks (kind 6) are 128-byte blocks of
// a header and 31 kids.
//
// Kind 5 is a 16-byte pointer-prefix node holding a 64-bit value for a slot
// that only stores 32-bit refs: every long value of a mask node, and every
// long value on 32-bit targets.
//
// A scan node growing beyond 16 branches is promoted to a mask node, a mask
// node shrinking to 8 children is demoted back. Keys that do not fit a
// single node are stored as chains of single-branch scan nodes.
package radix
