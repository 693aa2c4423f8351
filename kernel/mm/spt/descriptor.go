package spt

import (
	"govm/kernel"
	"govm/kernel/fs"
	"govm/kernel/mm"
	"govm/kernel/mm/swap"
	"govm/kernel/sync"
)

// State describes where the contents of a page currently live.
type State uint8

const (
	// ZeroFill pages have never been touched; their first fault maps a
	// zeroed frame.
	ZeroFill State = iota

	// FileBacked pages have never been touched; their first fault reads
	// their contents from a file region.
	FileBacked

	// Resident pages occupy a physical frame.
	Resident

	// Swapped pages were evicted and their contents live in a swap slot.
	Swapped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case ZeroFill:
		return "zero-fill"
	case FileBacked:
		return "file-backed"
	case Resident:
		return "resident"
	case Swapped:
		return "swapped"
	default:
		return "unknown"
	}
}

// FrameHandle is a weak reference to a frame table record. It is only
// meaningful while the descriptor is attached to a frame.
type FrameHandle uint64

// NoFrame is the handle of descriptors that are not attached to a frame.
const NoFrame = FrameHandle(0)

var errIllegalTransition = &kernel.Error{Module: "spt", Message: "illegal page state transition"}

// Descriptor describes how to materialize the contents of one virtual page.
//
// The page address, protection and file-backed template never change after
// creation. The residency fields (state, frame, swap slot and dirty flag) are
// only changed by the frame table through the transition methods below.
type Descriptor struct {
	page     mm.Page
	writable bool

	file      fs.File
	offset    int64
	readBytes uint32
	zeroBytes uint32

	mu    sync.Spinlock
	state State
	frame FrameHandle
	slot  swap.Slot
	dirty bool
}

// Page returns the virtual page described by d.
func (d *Descriptor) Page() mm.Page { return d.page }

// Address returns the page-aligned virtual address described by d.
func (d *Descriptor) Address() uintptr { return d.page.Address() }

// Writable returns true if the page may be mapped with write access.
func (d *Descriptor) Writable() bool { return d.writable }

// File returns the file that backs the page or nil for anonymous pages.
func (d *Descriptor) File() fs.File { return d.file }

// Offset returns the file offset of the page contents.
func (d *Descriptor) Offset() int64 { return d.offset }

// ReadBytes returns the number of page bytes that are read from the file.
func (d *Descriptor) ReadBytes() uint32 { return d.readBytes }

// ZeroBytes returns the number of trailing page bytes that are zero-filled.
func (d *Descriptor) ZeroBytes() uint32 { return d.zeroBytes }

// State returns the current state of the page.
func (d *Descriptor) State() State {
	d.mu.Acquire()
	defer d.mu.Release()
	return d.state
}

// Frame returns the handle of the frame attached to d or NoFrame.
func (d *Descriptor) Frame() FrameHandle {
	d.mu.Acquire()
	defer d.mu.Release()
	return d.frame
}

// SwapSlot returns the slot holding the page contents while d is Swapped.
func (d *Descriptor) SwapSlot() swap.Slot {
	d.mu.Acquire()
	defer d.mu.Release()
	return d.slot
}

// Dirty returns the sticky dirty flag recorded when the page was evicted.
func (d *Descriptor) Dirty() bool {
	d.mu.Acquire()
	defer d.mu.Release()
	return d.dirty
}

// Snapshot is a consistent copy of the residency fields of a descriptor.
type Snapshot struct {
	State State
	Frame FrameHandle
	Slot  swap.Slot
	Dirty bool
}

// Snapshot returns the residency fields of d read under a single lock.
func (d *Descriptor) Snapshot() Snapshot {
	d.mu.Acquire()
	defer d.mu.Release()
	return Snapshot{State: d.state, Frame: d.frame, Slot: d.slot, Dirty: d.dirty}
}

// AttachFrame links d with a frame that is about to receive its contents.
// The descriptor keeps its current state until CommitResident is called.
func (d *Descriptor) AttachFrame(h FrameHandle) *kernel.Error {
	d.mu.Acquire()
	defer d.mu.Release()

	if h == NoFrame || d.frame != NoFrame || d.state == Resident {
		return errIllegalTransition
	}
	d.frame = h
	return nil
}

// DetachFrame drops the link to the frame. A descriptor that was Resident
// loses its contents; it may only be destroyed afterwards.
func (d *Descriptor) DetachFrame() {
	d.mu.Acquire()
	d.frame = NoFrame
	d.mu.Release()
}

// CommitResident marks an attached descriptor as Resident. The swap slot,
// if any, must already have been released by the caller.
func (d *Descriptor) CommitResident() *kernel.Error {
	d.mu.Acquire()
	defer d.mu.Release()

	if d.frame == NoFrame {
		return errIllegalTransition
	}
	d.state = Resident
	d.slot = swap.InvalidSlot
	return nil
}

// CommitSwapped records that the contents of a Resident descriptor were
// written to slot and drops the frame link.
func (d *Descriptor) CommitSwapped(slot swap.Slot, dirty bool) *kernel.Error {
	d.mu.Acquire()
	defer d.mu.Release()

	if d.state != Resident || !slot.Valid() {
		return errIllegalTransition
	}
	d.state = Swapped
	d.frame = NoFrame
	d.slot = slot
	d.dirty = dirty
	return nil
}

// TakeSwapSlot transfers ownership of the swap slot of a Swapped descriptor
// to the caller, which becomes responsible for freeing it. The descriptor
// may only be destroyed afterwards.
func (d *Descriptor) TakeSwapSlot() (swap.Slot, bool) {
	d.mu.Acquire()
	defer d.mu.Release()

	if d.state != Swapped || !d.slot.Valid() {
		return swap.InvalidSlot, false
	}
	slot := d.slot
	d.slot = swap.InvalidSlot
	return slot, true
}
