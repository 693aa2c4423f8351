package vm

import (
	"govm/kernel"
	"govm/kernel/fs"
	"govm/kernel/kfmt"
	"govm/kernel/mm"
	"govm/kernel/mm/spt"
	"govm/kernel/mm/vmm"
	"govm/kernel/sync"
)

var (
	errTerminated    = &kernel.Error{Module: "vm", Message: "address space has been terminated"}
	errBadSegment    = &kernel.Error{Module: "vm", Message: "segment must be page-aligned and fit in user space"}
	errBadUserBuffer = &kernel.Error{Module: "vm", Message: "invalid user buffer"}
)

// AddressSpace is the virtual memory state of one user process. A
// per-process lock serializes changes to its page table and the handling of
// its page faults.
type AddressSpace struct {
	sys  *System
	pid  uint32
	name string

	lock  sync.Spinlock
	pages *spt.Table
	pdt   *vmm.PageDirectoryTable

	mappings  map[MapID]*Mapping
	nextMapID MapID

	// userSP is the user stack pointer saved on entry to a system call.
	userSP uintptr

	terminated bool
	exitStatus int
	destroyed  bool
}

func newAddressSpace(sys *System, pid uint32, name string) *AddressSpace {
	return &AddressSpace{
		sys:       sys,
		pid:       pid,
		name:      name,
		pages:     spt.NewTable(),
		pdt:       vmm.NewPageDirectoryTable(),
		mappings:  make(map[MapID]*Mapping),
		nextMapID: 1,
	}
}

// PID returns the process id of the address space owner.
func (as *AddressSpace) PID() uint32 { return as.pid }

// Name returns the name of the address space owner.
func (as *AddressSpace) Name() string { return as.name }

// Lookup returns the page descriptor for the page containing addr or nil.
func (as *AddressSpace) Lookup(addr uintptr) *spt.Descriptor {
	return as.pages.Lookup(mm.PageFromAddress(addr))
}

// Terminated returns true once the process was killed by a fault or its
// address space was destroyed.
func (as *AddressSpace) Terminated() bool {
	as.lock.Acquire()
	defer as.lock.Release()
	return as.terminated
}

// ExitStatus returns the exit status recorded when the process was killed.
func (as *AddressSpace) ExitStatus() int {
	as.lock.Acquire()
	defer as.lock.Release()
	return as.exitStatus
}

// EnterSyscall records the user stack pointer at the time the process
// entered the kernel. Faults on user memory raised while the kernel serves
// the call use it to recognize stack accesses.
func (as *AddressSpace) EnterSyscall(sp uintptr) {
	as.lock.Acquire()
	as.userSP = sp
	as.lock.Release()
}

// LoadSegment lazily maps an executable segment at upage: readBytes bytes are
// read from file starting at offset and the following zeroBytes bytes are
// zero-filled. No page is read until it is first accessed.
func (as *AddressSpace) LoadSegment(file fs.File, offset int64, upage uintptr, readBytes, zeroBytes uint32, writable bool) *kernel.Error {
	size := uintptr(readBytes) + uintptr(zeroBytes)
	if !mm.IsPageAligned(upage) || size%mm.PageSize != 0 || offset%int64(mm.PageSize) != 0 ||
		upage < mm.UserBase || upage+size > mm.PhysBase || upage+size < upage {
		return errBadSegment
	}

	as.lock.Acquire()
	defer as.lock.Release()

	if as.terminated {
		return errTerminated
	}

	var inserted []mm.Page
	for page := mm.PageFromAddress(upage); readBytes > 0 || zeroBytes > 0; page++ {
		pageRead := readBytes
		if uintptr(pageRead) > mm.PageSize {
			pageRead = uint32(mm.PageSize)
		}
		pageZero := uint32(mm.PageSize) - pageRead

		if _, err := as.pages.InsertFileBacked(page, writable, file, offset, pageRead, pageZero); err != nil {
			as.removeDescriptors(inserted)
			return err
		}
		inserted = append(inserted, page)

		readBytes -= pageRead
		zeroBytes -= pageZero
		offset += int64(pageRead)
	}

	return nil
}

// SetupStack creates the first stack page right below PhysBase, brings it
// into memory and returns the initial stack pointer.
func (as *AddressSpace) SetupStack() (uintptr, *kernel.Error) {
	as.lock.Acquire()
	defer as.lock.Release()

	if as.terminated {
		return 0, errTerminated
	}

	d, err := as.pages.InsertZeroFill(mm.PageFromAddress(mm.PhysBase - mm.PageSize))
	if err != nil {
		return 0, err
	}

	if err = as.materialize(d); err != nil {
		as.removeDescriptors([]mm.Page{d.Page()})
		return 0, err
	}

	as.userSP = mm.PhysBase
	return mm.PhysBase, nil
}

// CheckUserBuffer verifies that every page of [addr, addr+size) is either
// described by the page table or a valid stack growth target for sp and,
// for writes, that the pages are writable. Pages are not brought in.
func (as *AddressSpace) CheckUserBuffer(addr, size uintptr, write bool, sp uintptr) *kernel.Error {
	end := addr + size
	if size == 0 {
		end = addr + 1
	}
	if addr < mm.UserBase || end > mm.PhysBase || end < addr {
		return errBadUserBuffer
	}

	for page, last := mm.PageFromAddress(addr), mm.PageFromAddress(end-1); page <= last; page++ {
		d := as.pages.Lookup(page)
		switch {
		case d == nil && isStackAccess(maxAddr(addr, page.Address()), sp):
			continue
		case d == nil, write && !d.Writable():
			return errBadUserBuffer
		}
	}

	return nil
}

// Destroy tears down the address space: every mapping is unmapped with
// write-back, every frame and swap slot is returned and the page directory
// is discarded. Calling Destroy more than once is harmless.
func (as *AddressSpace) Destroy() {
	as.lock.Acquire()
	defer as.lock.Release()

	if as.destroyed {
		return
	}

	for _, m := range as.sortedMappings() {
		if err := as.unmap(m); err != nil {
			kfmt.Printf("[vm] %s: write-back of mapping %d failed: %s\n", as.name, m.id, err.Error())
		}
	}

	frames := as.sys.frames
	as.pages.DestroyAll(func(d *spt.Descriptor) {
		if err := frames.Reclaim(d, as.pdt, nil); err != nil {
			kfmt.Printf("[vm] %s: unable to reclaim page 0x%x: %s\n", as.name, d.Address(), err.Error())
		}
	})

	as.pdt.Destroy()
	as.destroyed = true
	as.terminated = true
	as.sys.forget(as)
}

// removeDescriptors drops descriptors that were never materialized.
func (as *AddressSpace) removeDescriptors(pages []mm.Page) {
	for _, page := range pages {
		_, _ = as.pages.Remove(page)
	}
}

// kill terminates the process with exit status -1.
func (as *AddressSpace) kill() {
	if as.terminated {
		return
	}

	as.terminated = true
	as.exitStatus = -1
	kfmt.Printf("%s: exit(%d)\n", as.name, as.exitStatus)
}

func maxAddr(a, b uintptr) uintptr {
	if a > b {
		return a
	}
	return b
}
