//go:build unix

package alloc

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func mapSlab(size int) ([]byte, func() error, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("alloc: mmap %d bytes: %w", size, err)
	}
	unmap := func() error {
		if mem == nil {
			return nil
		}
		err := unix.Munmap(mem)
		if errors.Is(err, unix.EINVAL) {
			// already unmapped
			return nil
		}
		mem = nil
		return err
	}
	return mem, unmap, nil
}
