package vm

import (
	"govm/kernel"
	"govm/kernel/kfmt"
	"govm/kernel/mm"
	"govm/kernel/mm/spt"
	"govm/kernel/mm/vmm"
)

var (
	errBadAddress          = &kernel.Error{Module: "vm", Message: "fault address outside user space"}
	errUnmappedAddress     = &kernel.Error{Module: "vm", Message: "fault address is not mapped"}
	errReadOnlyPage        = &kernel.Error{Module: "vm", Message: "write to read-only page"}
	errProtectionViolation = &kernel.Error{Module: "vm", Message: "page protection violation"}
	errShortRead           = &kernel.Error{Module: "vm", Message: "short read while loading page"}

	mapPageFn = (*vmm.PageDirectoryTable).Map
)

// ResolveFault handles a fault at addr. write and user describe the faulting
// access and sp is the user stack pointer at the time of the fault; faults
// raised in kernel mode use the stack pointer saved by EnterSyscall instead.
//
// On success the faulting access can be retried. Otherwise the process is
// terminated with exit status -1 and the reason is returned.
func (as *AddressSpace) ResolveFault(addr uintptr, write, user bool, sp uintptr) *kernel.Error {
	as.lock.Acquire()
	defer as.lock.Release()

	if as.terminated {
		return errTerminated
	}

	err := as.resolve(addr, write, user, sp)
	if err != nil {
		as.kill()
	}
	return err
}

// HandleTrap is the page-fault trap entry point. It decodes the CPU error
// code, resolves faults on non-present pages and terminates the process on
// every other fault after logging the fault reason.
func (as *AddressSpace) HandleTrap(code vmm.FaultCode, addr, sp uintptr) *kernel.Error {
	as.lock.Acquire()
	defer as.lock.Release()

	if as.terminated {
		return errTerminated
	}

	var err *kernel.Error
	if code&vmm.FaultProtection != 0 {
		err = errProtectionViolation
	} else {
		err = as.resolve(addr, code&vmm.FaultWrite != 0, code&vmm.FaultUser != 0, sp)
	}

	if err != nil {
		nonRecoverablePageFault(addr, code, err)
		as.kill()
	}
	return err
}

func nonRecoverablePageFault(faultAddress uintptr, code vmm.FaultCode, err *kernel.Error) {
	kfmt.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", faultAddress)
	switch code &^ vmm.FaultUser {
	case 0:
		kfmt.Printf("read from non-present page")
	case vmm.FaultProtection:
		kfmt.Printf("page protection violation (read)")
	case vmm.FaultWrite:
		kfmt.Printf("write to non-present page")
	case vmm.FaultProtection | vmm.FaultWrite:
		kfmt.Printf("page protection violation (write)")
	default:
		kfmt.Printf("unknown")
	}

	if code&vmm.FaultUser != 0 {
		kfmt.Printf(" in user-mode")
	}
	kfmt.Printf("\nError: %s\n", err.Error())
}

// resolve runs the fault pipeline. It must be called with the address space
// lock held.
func (as *AddressSpace) resolve(addr uintptr, write, user bool, sp uintptr) *kernel.Error {
	if addr < mm.UserBase || addr >= mm.PhysBase {
		return errBadAddress
	}

	if !user {
		sp = as.userSP
	}

	page := mm.PageFromAddress(addr)
	d := as.pages.Lookup(page)
	if d == nil && isStackAccess(addr, sp) {
		var err *kernel.Error
		if d, err = as.pages.InsertZeroFill(page); err != nil {
			return err
		}
	}

	switch {
	case d == nil:
		return errUnmappedAddress
	case write && !d.Writable():
		return errReadOnlyPage
	}

	return as.materialize(d)
}

// isStackAccess returns true if an access at addr, with the stack pointer at
// sp, should grow the stack. Accesses up to StackSlack bytes below sp count as
// stack accesses so that PUSH and PUSHA work.
func isStackAccess(addr, sp uintptr) bool {
	return addr >= mm.PhysBase-mm.MaxStackSize && addr < mm.PhysBase && addr+mm.StackSlack >= sp
}

// materialize brings the contents of d into a frame and maps it. A
// descriptor that is already resident (its mapping was removed by a failed
// eviction) is simply mapped again.
//
// It runs with the address space lock held, so the threads of a process
// resolve their faults one at a time.
func (as *AddressSpace) materialize(d *spt.Descriptor) *kernel.Error {
	frames := as.sys.frames

	h, err := frames.Allocate(d, as.pdt)
	if err != nil {
		return err
	}

	snap := d.Snapshot()
	var dirty bool

	if snap.State != spt.Resident {
		if err = as.fill(d, snap, h); err != nil {
			_ = frames.Release(h)
			return err
		}
		dirty = snap.State == spt.Swapped && snap.Dirty
	} else {
		// Another thread of this process already resolved the fault.
		if _, _, mapped := as.pdt.Lookup(d.Page()); mapped {
			return frames.Commit(h)
		}
		dirty = as.pdt.IsDirty(d.Page())
	}

	physFrame, err := frames.PhysicalFrame(h)
	if err == nil {
		flags := vmm.FlagUserAccessible
		if d.Writable() {
			flags |= vmm.FlagRW
		}
		err = mapPageFn(as.pdt, d.Page(), physFrame, flags)
	}
	if err != nil {
		if snap.State != spt.Resident {
			_ = frames.Release(h)
		} else {
			_ = frames.Commit(h)
		}
		return err
	}

	if dirty {
		as.pdt.SetDirty(d.Page(), true)
	}

	return frames.Commit(h)
}

// fill loads the contents of a pinned frame according to the descriptor
// state captured in snap. It runs without the frame table lock held.
func (as *AddressSpace) fill(d *spt.Descriptor, snap spt.Snapshot, h spt.FrameHandle) *kernel.Error {
	data, err := as.sys.frames.Data(h)
	if err != nil {
		return err
	}

	switch snap.State {
	case spt.ZeroFill:
		kernel.Memset(data, 0)
	case spt.FileBacked:
		readBytes := int(d.ReadBytes())
		n, err := d.File().ReadAt(data[:readBytes], d.Offset())
		if err != nil {
			return err
		}
		if n != readBytes {
			return errShortRead
		}
		kernel.Memset(data[readBytes:], 0)
	case spt.Swapped:
		if err = as.sys.swap.SwapIn(snap.Slot, data); err != nil {
			return err
		}
		// SwapIn freed the slot; the page contents now live only in the frame.
		d.TakeSwapSlot()
	}

	return nil
}
