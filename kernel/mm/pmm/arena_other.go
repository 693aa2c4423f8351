//go:build !unix

package pmm

import "govm/kernel"

// mapArena falls back to a heap allocation on platforms without mmap.
func mapArena(size int) ([]byte, *kernel.Error) {
	return make([]byte, size), nil
}

func unmapArena(_ []byte) *kernel.Error {
	return nil
}
