// Package swap implements the swap-slot allocator. A slot is a page-sized run
// of consecutive sectors on the swap block device; slot occupancy is tracked
// by a bitmap that is the single source of truth for which slots hold data.
package swap

import (
	"math"
	"math/bits"

	"govm/kernel"
	"govm/kernel/block"
	"govm/kernel/mm"
	"govm/kernel/sync"
)

// SectorsPerSlot is the number of device sectors that hold one page.
const SectorsPerSlot = uint32(mm.PageSize / block.SectorSize)

// Slot identifies a page-sized region of the swap device.
type Slot uint32

// InvalidSlot is the slot value of descriptors that own no swap space.
const InvalidSlot = Slot(math.MaxUint32)

// Valid returns true if this is a valid slot.
func (s Slot) Valid() bool {
	return s != InvalidSlot
}

var (
	// ErrFull is returned by SwapOut when every slot is in use.
	ErrFull = &kernel.Error{Module: "swap", Message: "swap device is full"}

	// ErrSlotNotInUse is returned when reading or freeing a free slot.
	ErrSlotNotInUse = &kernel.Error{Module: "swap", Message: "swap slot is not in use"}

	errPageSize = &kernel.Error{Module: "swap", Message: "buffer must be exactly one page long"}
)

// Store allocates swap slots on a block device and moves page contents in and
// out of them. All operations are serialized by the swap lock.
type Store struct {
	lock sync.Spinlock
	dev  block.Device

	slotCount uint32
	usedSlots uint32
	bitmap    []uint64
}

// NewStore returns a swap store that uses every whole slot of dev.
func NewStore(dev block.Device) *Store {
	slotCount := dev.SectorCount() / SectorsPerSlot
	return &Store{
		dev:       dev,
		slotCount: slotCount,
		bitmap:    make([]uint64, (slotCount+63)>>6),
	}
}

// SwapOut reserves a free slot, writes page to it and returns the slot. If
// the device write fails the slot is released again.
func (s *Store) SwapOut(page []byte) (Slot, *kernel.Error) {
	if uintptr(len(page)) != mm.PageSize {
		return InvalidSlot, errPageSize
	}

	s.lock.Acquire()
	defer s.lock.Release()

	slot, err := s.reserve()
	if err != nil {
		return InvalidSlot, err
	}

	firstSector := uint32(slot) * SectorsPerSlot
	for i := uint32(0); i < SectorsPerSlot; i++ {
		if err = s.dev.WriteSector(firstSector+i, page[i*block.SectorSize:(i+1)*block.SectorSize]); err != nil {
			s.release(slot)
			return InvalidSlot, err
		}
	}

	return slot, nil
}

// SwapIn reads the contents of slot into page and frees the slot. On a device
// error the slot stays reserved so its owner may retry or free it.
func (s *Store) SwapIn(slot Slot, page []byte) *kernel.Error {
	if uintptr(len(page)) != mm.PageSize {
		return errPageSize
	}

	s.lock.Acquire()
	defer s.lock.Release()

	if !s.inUse(slot) {
		return ErrSlotNotInUse
	}

	firstSector := uint32(slot) * SectorsPerSlot
	for i := uint32(0); i < SectorsPerSlot; i++ {
		if err := s.dev.ReadSector(firstSector+i, page[i*block.SectorSize:(i+1)*block.SectorSize]); err != nil {
			return err
		}
	}

	s.release(slot)
	return nil
}

// Free releases a slot without reading it back. It is used when the owner of
// a swapped page is destroyed.
func (s *Store) Free(slot Slot) *kernel.Error {
	s.lock.Acquire()
	defer s.lock.Release()

	if !s.inUse(slot) {
		return ErrSlotNotInUse
	}
	s.release(slot)
	return nil
}

// InUse returns true if slot is reserved.
func (s *Store) InUse(slot Slot) bool {
	s.lock.Acquire()
	defer s.lock.Release()
	return s.inUse(slot)
}

// SlotCount returns the number of slots on the device.
func (s *Store) SlotCount() uint32 {
	return s.slotCount
}

// UsedSlots returns the number of reserved slots.
func (s *Store) UsedSlots() uint32 {
	s.lock.Acquire()
	defer s.lock.Release()
	return s.usedSlots
}

// reserve flips the first free bit of the bitmap.
func (s *Store) reserve() (Slot, *kernel.Error) {
	if s.usedSlots == s.slotCount {
		return InvalidSlot, ErrFull
	}

	for wordIndex, word := range s.bitmap {
		if word == math.MaxUint64 {
			continue
		}

		slot := uint32(wordIndex<<6) + uint32(bits.TrailingZeros64(^word))
		if slot >= s.slotCount {
			break
		}

		s.bitmap[wordIndex] |= 1 << (slot & 63)
		s.usedSlots++
		return Slot(slot), nil
	}

	return InvalidSlot, ErrFull
}

func (s *Store) release(slot Slot) {
	s.bitmap[slot>>6] &^= 1 << (slot & 63)
	s.usedSlots--
}

func (s *Store) inUse(slot Slot) bool {
	if !slot.Valid() || uint32(slot) >= s.slotCount {
		return false
	}
	return s.bitmap[slot>>6]&(1<<(slot&63)) != 0
}
