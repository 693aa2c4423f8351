// Package pmm implements the physical page allocator that hands out the frames
// committed to user data. Frame contents live in a memory arena that stands in
// for physical RAM.
package pmm

import (
	"math/bits"

	"govm/kernel"
	"govm/kernel/mm"
	"govm/kernel/sync"
)

var (
	errArenaMapFailed   = &kernel.Error{Module: "pmm", Message: "unable to reserve physical memory arena"}
	errArenaUnmapFailed = &kernel.Error{Module: "pmm", Message: "unable to release physical memory arena"}
	errNoFrames         = &kernel.Error{Module: "pmm", Message: "frame count must be greater than zero"}
	errFrameNotManaged  = &kernel.Error{Module: "pmm", Message: "frame not managed by this allocator"}
	errDoubleFree       = &kernel.Error{Module: "pmm", Message: "frame is not reserved"}
	errAllocatorClosed  = &kernel.Error{Module: "pmm", Message: "allocator has been closed"}

	// ErrOutOfMemory is returned by AllocFrame when every managed frame is
	// reserved.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}
)

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations in a bitmap. Each bit i corresponds to frame (startFrame + i).
type BitmapAllocator struct {
	lock sync.Spinlock

	// startFrame is the frame number for the first page in the pool.
	startFrame mm.Frame

	// totalPages tracks the total number of managed pages.
	totalPages uint32

	// reservedPages tracks the number of reserved pages.
	reservedPages uint32

	// freeBitmap tracks used/free pages in the pool. A set bit marks a
	// reserved frame.
	freeBitmap []uint64

	// arena holds the contents of all managed frames.
	arena []byte
}

// NewBitmapAllocator creates an allocator managing frameCount frames whose
// numbering starts at startFrame.
func NewBitmapAllocator(startFrame mm.Frame, frameCount uint32) (*BitmapAllocator, *kernel.Error) {
	if frameCount == 0 {
		return nil, errNoFrames
	}

	arena, err := mapArena(int(uintptr(frameCount) << mm.PageShift))
	if err != nil {
		return nil, err
	}

	return &BitmapAllocator{
		startFrame: startFrame,
		totalPages: frameCount,
		// To represent the free page bitmap we need frameCount bits
		// rounded up to a multiple of 64.
		freeBitmap: make([]uint64, (frameCount+63)>>6),
		arena:      arena,
	}, nil
}

// AllocFrame reserves the lowest-numbered free frame. It returns
// ErrOutOfMemory when no frame is available.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	if alloc.arena == nil {
		return mm.InvalidFrame, errAllocatorClosed
	}

	if alloc.reservedPages == alloc.totalPages {
		return mm.InvalidFrame, ErrOutOfMemory
	}

	for blockIndex, block := range alloc.freeBitmap {
		if block == ^uint64(0) {
			continue
		}

		bitIndex := uint32(blockIndex<<6) + uint32(bits.TrailingZeros64(^block))
		if bitIndex >= alloc.totalPages {
			break
		}

		alloc.freeBitmap[blockIndex] |= 1 << (bitIndex & 63)
		alloc.reservedPages++
		return alloc.startFrame + mm.Frame(bitIndex), nil
	}

	return mm.InvalidFrame, ErrOutOfMemory
}

// FreeFrame releases a frame previously reserved by AllocFrame.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	bitIndex, err := alloc.bitIndex(frame)
	if err != nil {
		return err
	}

	mask := uint64(1) << (bitIndex & 63)
	if alloc.freeBitmap[bitIndex>>6]&mask == 0 {
		return errDoubleFree
	}

	alloc.freeBitmap[bitIndex>>6] &^= mask
	alloc.reservedPages--
	return nil
}

// FrameData returns the contents of a managed frame. The returned slice
// aliases the allocator arena and is exactly mm.PageSize bytes long. It
// returns nil for frames outside the pool.
func (alloc *BitmapAllocator) FrameData(frame mm.Frame) []byte {
	bitIndex, err := alloc.bitIndex(frame)
	if err != nil || alloc.arena == nil {
		return nil
	}

	start := uintptr(bitIndex) << mm.PageShift
	return alloc.arena[start : start+mm.PageSize : start+mm.PageSize]
}

// TotalFrames returns the number of frames managed by the allocator.
func (alloc *BitmapAllocator) TotalFrames() uint32 {
	return alloc.totalPages
}

// FreeFrames returns the number of frames that are currently available.
func (alloc *BitmapAllocator) FreeFrames() uint32 {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	return alloc.totalPages - alloc.reservedPages
}

// Close releases the memory arena. The allocator cannot be used afterwards.
func (alloc *BitmapAllocator) Close() *kernel.Error {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	if alloc.arena == nil {
		return nil
	}

	err := unmapArena(alloc.arena)
	alloc.arena = nil
	return err
}

func (alloc *BitmapAllocator) bitIndex(frame mm.Frame) (uint32, *kernel.Error) {
	if !frame.Valid() || frame < alloc.startFrame || frame >= alloc.startFrame+mm.Frame(alloc.totalPages) {
		return 0, errFrameNotManaged
	}
	return uint32(frame - alloc.startFrame), nil
}
