// Package vm ties the paging components together into per-process address
// spaces. It implements the page-fault resolver, the memory-mapped file
// manager and the process hooks (segment loading, stack setup, teardown)
// used by the rest of the kernel.
package vm

import (
	"govm/kernel/mm/frame"
	"govm/kernel/mm/swap"
	"govm/kernel/sync"
)

// System holds the global paging state shared by every address space.
type System struct {
	frames *frame.Table
	swap   *swap.Store

	lock    sync.Spinlock
	nextPID uint32
	spaces  map[uint32]*AddressSpace
}

// Stats is a snapshot of the paging counters.
type Stats struct {
	ResidentFrames int
	Evictions      uint64
	SwapSlots      uint32
	SwapSlotsUsed  uint32
	AddressSpaces  int
}

// NewSystem returns a paging system that materializes pages in frames and
// evicts them to store.
func NewSystem(frames *frame.Table, store *swap.Store) *System {
	return &System{
		frames:  frames,
		swap:    store,
		nextPID: 1,
		spaces:  make(map[uint32]*AddressSpace),
	}
}

// NewAddressSpace creates an empty address space for the named process.
func (s *System) NewAddressSpace(name string) *AddressSpace {
	s.lock.Acquire()
	defer s.lock.Release()

	as := newAddressSpace(s, s.nextPID, name)
	s.spaces[as.pid] = as
	s.nextPID++
	return as
}

// Frames returns the global frame table.
func (s *System) Frames() *frame.Table { return s.frames }

// Swap returns the swap store.
func (s *System) Swap() *swap.Store { return s.swap }

// Stats returns the current paging counters.
func (s *System) Stats() Stats {
	s.lock.Acquire()
	spaces := len(s.spaces)
	s.lock.Release()

	return Stats{
		ResidentFrames: s.frames.Len(),
		Evictions:      s.frames.Evictions(),
		SwapSlots:      s.swap.SlotCount(),
		SwapSlotsUsed:  s.swap.UsedSlots(),
		AddressSpaces:  spaces,
	}
}

func (s *System) forget(as *AddressSpace) {
	s.lock.Acquire()
	delete(s.spaces, as.pid)
	s.lock.Release()
}
