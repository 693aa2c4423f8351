package vm

import (
	"govm/kernel"
)

// Read copies len(buf) bytes starting at the user address addr into buf, the
// way the process would read its own memory. Faults are routed through the
// fault resolver and the access is retried; sp is the user stack pointer.
// Read returns the number of bytes copied before an unrecoverable fault.
func (as *AddressSpace) Read(addr uintptr, buf []byte, sp uintptr) (int, *kernel.Error) {
	return as.access(addr, buf, false, sp)
}

// Write copies buf to the user address addr. See Read.
func (as *AddressSpace) Write(addr uintptr, buf []byte, sp uintptr) (int, *kernel.Error) {
	return as.access(addr, buf, true, sp)
}

func (as *AddressSpace) access(addr uintptr, buf []byte, write bool, sp uintptr) (int, *kernel.Error) {
	var done int
	for done < len(buf) {
		cur := addr + uintptr(done)
		n, code, ok := as.sys.frames.Access(as.pdt, cur, buf[done:], write, true)
		if ok {
			done += n
			continue
		}

		if err := as.HandleTrap(code, cur, sp); err != nil {
			return done, err
		}
	}

	return done, nil
}
