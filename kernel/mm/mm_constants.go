package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// PhysBase is the first virtual address that belongs to the kernel.
	// User address spaces span [UserBase, PhysBase).
	PhysBase = uintptr(0xc0000000)

	// UserBase is the lowest virtual address a user process may map. The
	// page at address zero is never mapped so that nil dereferences fault.
	UserBase = PageSize

	// MaxStackSize is the maximum size of a user stack. Faults further than
	// MaxStackSize below PhysBase are never treated as stack growth.
	MaxStackSize = uintptr(8 * Mb)

	// StackSlack is the distance below the stack pointer at which an access
	// still counts as a stack access (x86 PUSHA writes 32 bytes below esp
	// before adjusting it).
	StackSlack = uintptr(32)
)
