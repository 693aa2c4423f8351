//go:build unix

package pmm

import (
	"govm/kernel"

	"golang.org/x/sys/unix"
)

// mapArena reserves size bytes of anonymous memory that back the physical
// frames managed by the allocator.
func mapArena(size int) ([]byte, *kernel.Error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, kernel.Wrap(errArenaMapFailed, err)
	}
	return data, nil
}

// unmapArena releases an arena obtained by mapArena.
func unmapArena(data []byte) *kernel.Error {
	if err := unix.Munmap(data); err != nil {
		return kernel.Wrap(errArenaUnmapFailed, err)
	}
	return nil
}
