// Package vmm provides the hardware page-table primitives used by the virtual
// memory subsystem: per-process page directories that map virtual pages to
// physical frames and maintain accessed and dirty bits the way an MMU does.
package vmm

import (
	"govm/kernel"
	"govm/kernel/mm"
	"govm/kernel/sync"
)

// FaultCode encodes the cause of a page fault using the x86 error code bits.
type FaultCode uint32

const (
	// FaultProtection is set when the fault was caused by a protection
	// violation on a present page; cleared when the page was not present.
	FaultProtection FaultCode = 1 << iota

	// FaultWrite is set when the faulting access was a write.
	FaultWrite

	// FaultUser is set when the faulting access originated in user mode.
	FaultUser
)

var (
	// ErrInvalidMapping is returned when trying to lookup or clear a virtual
	// address that is not mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errKernelPage   = &kernel.Error{Module: "vmm", Message: "kernel pages cannot be mapped in a user page directory"}
	errInvalidFrame = &kernel.Error{Module: "vmm", Message: "cannot map an invalid frame"}
)

// PageDirectoryTable holds the page mappings of a single user address space.
// Entries that are cleared with Unmap keep their accessed and dirty bits
// until the page is mapped again so that the bits can be sampled after the
// mapping has been torn down.
type PageDirectoryTable struct {
	lock    sync.Spinlock
	entries map[mm.Page]pageTableEntry
}

// NewPageDirectoryTable returns an empty page directory.
func NewPageDirectoryTable() *PageDirectoryTable {
	return &PageDirectoryTable{
		entries: make(map[mm.Page]pageTableEntry),
	}
}

// Map establishes a mapping between a virtual page and a physical memory
// frame. Any previous mapping for the page, including its accessed and
// dirty bits, is overwritten. The FlagPresent flag is always set.
func (pdt *PageDirectoryTable) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if !mm.IsUserAddress(page.Address()) {
		return errKernelPage
	}

	if !frame.Valid() {
		return errInvalidFrame
	}

	pdt.lock.Acquire()
	defer pdt.lock.Release()

	var pte pageTableEntry
	pte.SetFrame(frame)
	pte.SetFlags(flags | FlagPresent)
	pdt.entries[page] = pte
	return nil
}

// Unmap marks the mapping for page as not present. The entry's accessed and
// dirty bits are preserved.
func (pdt *PageDirectoryTable) Unmap(page mm.Page) *kernel.Error {
	pdt.lock.Acquire()
	defer pdt.lock.Release()

	pte, ok := pdt.entries[page]
	if !ok || !pte.HasFlags(FlagPresent) {
		return ErrInvalidMapping
	}

	pte.ClearFlags(FlagPresent)
	pdt.entries[page] = pte
	return nil
}

// Remove discards the entry for page, including its accessed and dirty bits.
func (pdt *PageDirectoryTable) Remove(page mm.Page) {
	pdt.lock.Acquire()
	delete(pdt.entries, page)
	pdt.lock.Release()
}

// Lookup returns the frame and flags for a present mapping.
func (pdt *PageDirectoryTable) Lookup(page mm.Page) (mm.Frame, PageTableEntryFlag, bool) {
	pdt.lock.Acquire()
	defer pdt.lock.Release()

	pte, ok := pdt.entries[page]
	if !ok || !pte.HasFlags(FlagPresent) {
		return mm.InvalidFrame, 0, false
	}

	return pte.Frame(), PageTableEntryFlag(uintptr(pte) &^ ptePhysPageMask), true
}

// Access emulates the MMU walk performed for a memory reference. On success it
// sets the accessed bit (and the dirty bit for writes) and returns the
// physical frame. Otherwise it returns the fault code that the CPU would
// report for the access.
func (pdt *PageDirectoryTable) Access(virtAddr uintptr, write, user bool) (mm.Frame, FaultCode, bool) {
	var code FaultCode
	if write {
		code |= FaultWrite
	}
	if user {
		code |= FaultUser
	}

	page := mm.PageFromAddress(virtAddr)

	pdt.lock.Acquire()
	defer pdt.lock.Release()

	pte, ok := pdt.entries[page]
	switch {
	case !ok || !pte.HasFlags(FlagPresent):
		return mm.InvalidFrame, code, false
	case write && !pte.HasFlags(FlagRW):
		return mm.InvalidFrame, code | FaultProtection, false
	case user && !pte.HasFlags(FlagUserAccessible):
		return mm.InvalidFrame, code | FaultProtection, false
	}

	pte.SetFlags(FlagAccessed)
	if write {
		pte.SetFlags(FlagDirty)
	}
	pdt.entries[page] = pte
	return pte.Frame(), code, true
}

// IsAccessed returns true if the page was referenced since its accessed bit
// was last cleared.
func (pdt *PageDirectoryTable) IsAccessed(page mm.Page) bool {
	return pdt.hasFlags(page, FlagAccessed)
}

// SetAccessed sets or clears the accessed bit of page.
func (pdt *PageDirectoryTable) SetAccessed(page mm.Page, accessed bool) {
	pdt.setFlag(page, FlagAccessed, accessed)
}

// IsDirty returns true if the page was written since its dirty bit was last
// cleared.
func (pdt *PageDirectoryTable) IsDirty(page mm.Page) bool {
	return pdt.hasFlags(page, FlagDirty)
}

// SetDirty sets or clears the dirty bit of page.
func (pdt *PageDirectoryTable) SetDirty(page mm.Page, dirty bool) {
	pdt.setFlag(page, FlagDirty, dirty)
}

// Len returns the number of present mappings.
func (pdt *PageDirectoryTable) Len() int {
	pdt.lock.Acquire()
	defer pdt.lock.Release()

	var count int
	for _, pte := range pdt.entries {
		if pte.HasFlags(FlagPresent) {
			count++
		}
	}
	return count
}

// Destroy discards every entry of the page directory.
func (pdt *PageDirectoryTable) Destroy() {
	pdt.lock.Acquire()
	pdt.entries = make(map[mm.Page]pageTableEntry)
	pdt.lock.Release()
}

func (pdt *PageDirectoryTable) hasFlags(page mm.Page, flags PageTableEntryFlag) bool {
	pdt.lock.Acquire()
	defer pdt.lock.Release()

	pte, ok := pdt.entries[page]
	return ok && pte.HasFlags(flags)
}

func (pdt *PageDirectoryTable) setFlag(page mm.Page, flag PageTableEntryFlag, set bool) {
	pdt.lock.Acquire()
	defer pdt.lock.Release()

	pte, ok := pdt.entries[page]
	if !ok {
		return
	}

	if set {
		pte.SetFlags(flag)
	} else {
		pte.ClearFlags(flag)
	}
	pdt.entries[page] = pte
}
