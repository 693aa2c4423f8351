// Package spt implements the supplemental page table: a per-process map from
// page-aligned virtual addresses to the descriptors that tell the fault
// resolver how to materialize each page.
package spt

import (
	"sort"

	"govm/kernel"
	"govm/kernel/fs"
	"govm/kernel/mm"
	"govm/kernel/mm/swap"
	"govm/kernel/sync"
)

var (
	// ErrAlreadyMapped is returned when inserting a descriptor at an
	// address that already has one.
	ErrAlreadyMapped = &kernel.Error{Module: "spt", Message: "page already has a descriptor"}

	// ErrNotMapped is returned when removing an address without a
	// descriptor.
	ErrNotMapped = &kernel.Error{Module: "spt", Message: "page has no descriptor"}

	// ErrFrameAttached is returned when removing a descriptor whose frame
	// has not been released.
	ErrFrameAttached = &kernel.Error{Module: "spt", Message: "descriptor still holds a frame"}

	errNotUserPage    = &kernel.Error{Module: "spt", Message: "page is outside the user address space"}
	errInvalidLengths = &kernel.Error{Module: "spt", Message: "read and zero lengths must add up to a page"}
	errNilFile        = &kernel.Error{Module: "spt", Message: "file-backed page requires a file"}
)

// Table maps the virtual pages of one address space to their descriptors.
// Table mutations are serialized by an internal lock; the table itself never
// performs I/O.
type Table struct {
	lock    sync.Spinlock
	entries map[mm.Page]*Descriptor
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[mm.Page]*Descriptor)}
}

// Lookup returns the descriptor for page or nil.
func (t *Table) Lookup(page mm.Page) *Descriptor {
	t.lock.Acquire()
	defer t.lock.Release()
	return t.entries[page]
}

// InsertZeroFill registers a writable ZeroFill descriptor for page.
func (t *Table) InsertZeroFill(page mm.Page) (*Descriptor, *kernel.Error) {
	return t.insert(&Descriptor{
		page:     page,
		writable: true,
		state:    ZeroFill,
		slot:     swap.InvalidSlot,
	})
}

// InsertFileBacked registers a FileBacked descriptor for page whose first
// readBytes bytes come from file at offset and whose remaining zeroBytes
// bytes are zero-filled.
func (t *Table) InsertFileBacked(page mm.Page, writable bool, file fs.File, offset int64, readBytes, zeroBytes uint32) (*Descriptor, *kernel.Error) {
	if file == nil {
		return nil, errNilFile
	}
	if uintptr(readBytes)+uintptr(zeroBytes) != mm.PageSize {
		return nil, errInvalidLengths
	}

	return t.insert(&Descriptor{
		page:      page,
		writable:  writable,
		file:      file,
		offset:    offset,
		readBytes: readBytes,
		zeroBytes: zeroBytes,
		state:     FileBacked,
		slot:      swap.InvalidSlot,
	})
}

func (t *Table) insert(d *Descriptor) (*Descriptor, *kernel.Error) {
	if !mm.IsUserAddress(d.page.Address()) {
		return nil, errNotUserPage
	}

	t.lock.Acquire()
	defer t.lock.Release()

	if _, exists := t.entries[d.page]; exists {
		return nil, ErrAlreadyMapped
	}
	t.entries[d.page] = d
	return d, nil
}

// Remove detaches and returns the descriptor for page. The caller must have
// released the frame of a Resident descriptor beforehand.
func (t *Table) Remove(page mm.Page) (*Descriptor, *kernel.Error) {
	t.lock.Acquire()
	defer t.lock.Release()

	d, exists := t.entries[page]
	if !exists {
		return nil, ErrNotMapped
	}
	if d.Frame() != NoFrame {
		return nil, ErrFrameAttached
	}

	delete(t.entries, page)
	return d, nil
}

// DestroyAll empties the table and invokes release for every descriptor in
// ascending address order so the caller can return held frames and swap
// slots. release runs without the table lock held.
func (t *Table) DestroyAll(release func(*Descriptor)) {
	t.lock.Acquire()
	descriptors := t.sorted()
	t.entries = make(map[mm.Page]*Descriptor)
	t.lock.Release()

	if release == nil {
		return
	}
	for _, d := range descriptors {
		release(d)
	}
}

// Range invokes fn for each descriptor in ascending address order until fn
// returns false. fn runs without the table lock held.
func (t *Table) Range(fn func(*Descriptor) bool) {
	t.lock.Acquire()
	descriptors := t.sorted()
	t.lock.Release()

	for _, d := range descriptors {
		if !fn(d) {
			return
		}
	}
}

// Len returns the number of descriptors in the table.
func (t *Table) Len() int {
	t.lock.Acquire()
	defer t.lock.Release()
	return len(t.entries)
}

func (t *Table) sorted() []*Descriptor {
	descriptors := make([]*Descriptor, 0, len(t.entries))
	for _, d := range t.entries {
		descriptors = append(descriptors, d)
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].page < descriptors[j].page })
	return descriptors
}
