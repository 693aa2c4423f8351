// Package frame implements the global frame table. It tracks every physical
// frame that backs a user page, hands out frames to the fault resolver and
// reclaims frames with a clock (second chance) evictor when physical memory
// runs out.
package frame

import (
	"govm/kernel"
	"govm/kernel/kfmt"
	"govm/kernel/mm"
	"govm/kernel/mm/pmm"
	"govm/kernel/mm/spt"
	"govm/kernel/mm/swap"
	"govm/kernel/mm/vmm"
	"govm/kernel/sync"
)

// PageTable is the hardware page table of the process that owns a frame.
type PageTable interface {
	// Unmap clears the mapping for page while preserving its accessed and
	// dirty bits.
	Unmap(page mm.Page) *kernel.Error

	// IsAccessed and SetAccessed query and clear the accessed bit.
	IsAccessed(page mm.Page) bool
	SetAccessed(page mm.Page, accessed bool)

	// IsDirty returns true if the page was written since it was mapped.
	IsDirty(page mm.Page) bool

	// Access emulates a memory reference through the page table.
	Access(virtAddr uintptr, write, user bool) (mm.Frame, vmm.FaultCode, bool)
}

// PhysicalMemory allocates the physical frames tracked by the table.
type PhysicalMemory interface {
	AllocFrame() (mm.Frame, *kernel.Error)
	FreeFrame(mm.Frame) *kernel.Error
	FrameData(mm.Frame) []byte
}

var (
	// ErrStaleHandle is returned when a handle does not refer to a live
	// frame record.
	ErrStaleHandle = &kernel.Error{Module: "frame", Message: "stale frame handle"}

	errFrameBusy         = &kernel.Error{Module: "frame", Message: "descriptor frame is still being filled"}
	errEvictionFailed    = &kernel.Error{Module: "frame", Message: "out of physical memory after eviction"}
	errNoEvictableFrame  = &kernel.Error{Module: "frame", Message: "no evictable frame found after two sweeps"}
	errInconsistentFrame = &kernel.Error{Module: "frame", Message: "frame and page descriptor disagree"}
)

const noRecord = int32(-1)

// record tracks one allocated frame. Records live in an arena and are linked
// in insertion order so the clock hand can sweep them.
type record struct {
	frame    mm.Frame
	desc     *spt.Descriptor
	owner    PageTable
	accessed bool
	pinned   bool
	inUse    bool
	gen      uint32

	prev, next int32
}

// Table is the global frame table. A single lock covers allocation, release,
// the clock scan and eviction bookkeeping. Filling a frame with its contents
// happens outside the lock while the frame is pinned.
type Table struct {
	lock sync.Spinlock

	mem  PhysicalMemory
	swap *swap.Store

	records []record
	free    []int32
	byFrame map[mm.Frame]int32

	head, tail int32
	hand       int32
	count      int

	evictions uint64
}

// NewTable creates a frame table that allocates frames from mem and evicts
// pages to store.
func NewTable(mem PhysicalMemory, store *swap.Store) *Table {
	return &Table{
		mem:     mem,
		swap:    store,
		byFrame: make(map[mm.Frame]int32),
		head:    noRecord,
		tail:    noRecord,
		hand:    noRecord,
	}
}

// Allocate returns a pinned frame linked with d and owned by owner. If no
// physical frame is free the evictor runs once and the allocation is retried;
// running out of memory a second time halts the kernel. If d is already
// resident (its frame was unmapped by an eviction that failed to write the
// page out) the existing frame is pinned and returned instead.
//
// The caller must fill the frame (see Data) and then call Commit, or Release
// it on failure.
func (t *Table) Allocate(d *spt.Descriptor, owner PageTable) (spt.FrameHandle, *kernel.Error) {
	t.lock.Acquire()
	defer t.lock.Release()

	if h := d.Frame(); h != spt.NoFrame {
		index, err := t.resolve(h)
		if err != nil {
			return spt.NoFrame, err
		}
		if d.State() != spt.Resident || t.records[index].pinned {
			return spt.NoFrame, errFrameBusy
		}

		t.records[index].pinned = true
		t.records[index].accessed = true
		return h, nil
	}

	frame, err := t.mem.AllocFrame()
	if err == pmm.ErrOutOfMemory {
		if err = t.evict(); err != nil {
			return spt.NoFrame, err
		}

		if frame, err = t.mem.AllocFrame(); err != nil {
			kfmt.Panic(kernel.Wrap(errEvictionFailed, err))
		}
	}
	if err != nil {
		return spt.NoFrame, err
	}

	index := t.insert(frame, d, owner)
	h := t.handle(index)
	if err = d.AttachFrame(h); err != nil {
		t.remove(index)
		_ = t.mem.FreeFrame(frame)
		return spt.NoFrame, err
	}

	return h, nil
}

// Data returns the contents of the frame referenced by h.
func (t *Table) Data(h spt.FrameHandle) ([]byte, *kernel.Error) {
	t.lock.Acquire()
	defer t.lock.Release()

	index, err := t.resolve(h)
	if err != nil {
		return nil, err
	}
	return t.mem.FrameData(t.records[index].frame), nil
}

// PhysicalFrame returns the physical frame referenced by h.
func (t *Table) PhysicalFrame(h spt.FrameHandle) (mm.Frame, *kernel.Error) {
	t.lock.Acquire()
	defer t.lock.Release()

	index, err := t.resolve(h)
	if err != nil {
		return mm.InvalidFrame, err
	}
	return t.records[index].frame, nil
}

// Commit completes the materialization of the frame referenced by h: its
// descriptor becomes Resident and the frame is unpinned so that the evictor
// may select it.
func (t *Table) Commit(h spt.FrameHandle) *kernel.Error {
	t.lock.Acquire()
	defer t.lock.Release()

	index, err := t.resolve(h)
	if err != nil {
		return err
	}

	rec := &t.records[index]
	if err = rec.desc.CommitResident(); err != nil {
		return err
	}
	rec.pinned = false
	return nil
}

// Release unlinks the frame referenced by h from its descriptor and returns
// it to the physical allocator. Hardware mappings are not touched.
func (t *Table) Release(h spt.FrameHandle) *kernel.Error {
	t.lock.Acquire()
	defer t.lock.Release()

	index, err := t.resolve(h)
	if err != nil {
		return err
	}

	t.records[index].desc.DetachFrame()
	return t.drop(index)
}

// FindByPhysicalAddress returns the handle and descriptor of the frame that
// contains physAddr.
func (t *Table) FindByPhysicalAddress(physAddr uintptr) (spt.FrameHandle, *spt.Descriptor, bool) {
	t.lock.Acquire()
	defer t.lock.Release()

	index, ok := t.byFrame[mm.FrameFromAddress(physAddr)]
	if !ok {
		return spt.NoFrame, nil, false
	}
	return t.handle(index), t.records[index].desc, true
}

// Reclaim releases everything d holds on behalf of a dying mapping: a
// resident page is unmapped from owner and its frame freed, a swapped page
// gives back its swap slot. If the page is dirty, writeBack is invoked with
// its contents first. Reclaim runs under the frame table lock so an eviction
// in flight on one of the frames of d completes before d is torn down.
func (t *Table) Reclaim(d *spt.Descriptor, owner PageTable, writeBack func(data []byte) *kernel.Error) *kernel.Error {
	t.lock.Acquire()
	defer t.lock.Release()

	snap := d.Snapshot()
	switch {
	case snap.Frame != spt.NoFrame:
		index, err := t.resolve(snap.Frame)
		if err != nil {
			return err
		}

		rec := &t.records[index]
		if rec.pinned {
			return errFrameBusy
		}

		page := d.Page()
		unmap(owner, page)

		var wbErr *kernel.Error
		if writeBack != nil && (owner.IsDirty(page) || snap.Dirty) {
			wbErr = writeBack(t.mem.FrameData(rec.frame))
		}

		d.DetachFrame()
		if err = t.drop(index); err != nil {
			return err
		}
		return wbErr
	case snap.State == spt.Swapped:
		slot, ok := d.TakeSwapSlot()
		if !ok {
			return nil
		}

		if writeBack == nil || !snap.Dirty {
			return t.swap.Free(slot)
		}

		scratch := make([]byte, mm.PageSize)
		if err := t.swap.SwapIn(slot, scratch); err != nil {
			_ = t.swap.Free(slot)
			return err
		}
		return writeBack(scratch)
	}

	return nil
}

// Access performs a memory reference of len(buf) bytes at virtAddr through
// the page table of owner, copying from the referenced frame into buf or, for
// writes, from buf into the frame. The copy never crosses a page boundary and
// the number of copied bytes is returned. If the page table refuses the
// access, Access returns the fault code the CPU would raise.
//
// References hold the frame table lock so they never observe a frame that is
// concurrently being written to swap.
func (t *Table) Access(owner PageTable, virtAddr uintptr, buf []byte, write, user bool) (int, vmm.FaultCode, bool) {
	t.lock.Acquire()
	defer t.lock.Release()

	frame, code, ok := owner.Access(virtAddr, write, user)
	if !ok {
		return 0, code, false
	}

	data := t.mem.FrameData(frame)[mm.PageOffset(virtAddr):]
	if write {
		return kernel.Memcopy(buf, data), code, true
	}
	return kernel.Memcopy(data, buf), code, true
}

// Len returns the number of frames currently tracked by the table.
func (t *Table) Len() int {
	t.lock.Acquire()
	defer t.lock.Release()
	return t.count
}

// Evictions returns the number of pages written to swap so far.
func (t *Table) Evictions() uint64 {
	t.lock.Acquire()
	defer t.lock.Release()
	return t.evictions
}

// handle encodes the record index together with its generation so that
// handles to recycled records are detected.
func (t *Table) handle(index int32) spt.FrameHandle {
	return spt.FrameHandle(uint64(t.records[index].gen)<<32 | uint64(index+1))
}

func (t *Table) resolve(h spt.FrameHandle) (int32, *kernel.Error) {
	index := int64(uint32(h)) - 1
	if index < 0 || index >= int64(len(t.records)) {
		return noRecord, ErrStaleHandle
	}

	rec := &t.records[index]
	if !rec.inUse || rec.gen != uint32(h>>32) {
		return noRecord, ErrStaleHandle
	}
	return int32(index), nil
}

// insert places a pinned record for frame at the tail of the clock list.
func (t *Table) insert(frame mm.Frame, d *spt.Descriptor, owner PageTable) int32 {
	var index int32
	if last := len(t.free) - 1; last >= 0 {
		index = t.free[last]
		t.free = t.free[:last]
	} else {
		t.records = append(t.records, record{})
		index = int32(len(t.records) - 1)
	}

	rec := &t.records[index]
	*rec = record{
		frame:    frame,
		desc:     d,
		owner:    owner,
		accessed: true,
		pinned:   true,
		inUse:    true,
		gen:      rec.gen + 1,
		prev:     t.tail,
		next:     noRecord,
	}

	if t.tail != noRecord {
		t.records[t.tail].next = index
	} else {
		t.head = index
	}
	t.tail = index
	if t.hand == noRecord {
		t.hand = index
	}

	t.byFrame[frame] = index
	t.count++
	return index
}

// remove unlinks a record from the clock list and recycles its slot in the
// arena.
func (t *Table) remove(index int32) {
	rec := &t.records[index]

	if t.hand == index {
		t.hand = rec.next
		if t.hand == noRecord {
			t.hand = t.head
		}
		if t.hand == index {
			t.hand = noRecord
		}
	}

	if rec.prev != noRecord {
		t.records[rec.prev].next = rec.next
	} else {
		t.head = rec.next
	}
	if rec.next != noRecord {
		t.records[rec.next].prev = rec.prev
	} else {
		t.tail = rec.prev
	}

	delete(t.byFrame, rec.frame)
	gen := rec.gen
	*rec = record{gen: gen, prev: noRecord, next: noRecord}
	t.free = append(t.free, index)
	t.count--
}

// drop removes a record and returns its frame to the physical allocator.
func (t *Table) drop(index int32) *kernel.Error {
	frame := t.records[index].frame
	t.remove(index)
	return t.mem.FreeFrame(frame)
}
