package swap

import (
	"bytes"
	"testing"

	"govm/kernel"
	"govm/kernel/block"
	"govm/kernel/mm"
)

func pattern(seed byte) []byte {
	page := make([]byte, mm.PageSize)
	for i := range page {
		page[i] = seed + byte(i%251)
	}
	return page
}

func TestSwapRoundTrip(t *testing.T) {
	store := NewStore(block.NewMemDevice(4 * SectorsPerSlot))

	if exp, got := uint32(4), store.SlotCount(); got != exp {
		t.Fatalf("expected %d slots; got %d", exp, got)
	}

	var slots []Slot
	for i := 0; i < 4; i++ {
		slot, err := store.SwapOut(pattern(byte(i)))
		if err != nil {
			t.Fatalf("[page %d] unexpected error: %v", i, err)
		}

		if exp := Slot(i); slot != exp {
			t.Fatalf("expected slot %d; got %d", exp, slot)
		}
		slots = append(slots, slot)
	}

	if _, err := store.SwapOut(pattern(0xff)); err != ErrFull {
		t.Fatalf("expected ErrFull; got %v", err)
	}

	page := make([]byte, mm.PageSize)
	for i := len(slots) - 1; i >= 0; i-- {
		if err := store.SwapIn(slots[i], page); err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(page, pattern(byte(i))) {
			t.Fatalf("[slot %d] contents mismatch after swap-in", slots[i])
		}

		if store.InUse(slots[i]) {
			t.Fatalf("expected slot %d to be released by SwapIn", slots[i])
		}
	}

	if got := store.UsedSlots(); got != 0 {
		t.Fatalf("expected no used slots; got %d", got)
	}

	if err := store.SwapIn(slots[0], page); err != ErrSlotNotInUse {
		t.Fatalf("expected ErrSlotNotInUse; got %v", err)
	}
}

func TestSwapFree(t *testing.T) {
	store := NewStore(block.NewMemDevice(2*SectorsPerSlot + 3))

	if exp, got := uint32(2), store.SlotCount(); got != exp {
		t.Fatalf("expected partial slots to be ignored; got %d slots", got)
	}

	slot, _ := store.SwapOut(pattern(1))
	if err := store.Free(slot); err != nil {
		t.Fatal(err)
	}

	specs := []Slot{slot, InvalidSlot, Slot(2), Slot(1000)}
	for specIndex, spec := range specs {
		if err := store.Free(spec); err != ErrSlotNotInUse {
			t.Errorf("[spec %d] expected ErrSlotNotInUse; got %v", specIndex, err)
		}
	}

	// A freed slot is handed out again
	if reused, _ := store.SwapOut(pattern(2)); reused != slot {
		t.Fatalf("expected slot %d to be reused; got %d", slot, reused)
	}
}

type failingDevice struct {
	block.Device
	failWrites, failReads bool
}

var errDevice = &kernel.Error{Module: "test", Message: "device failure"}

func (d *failingDevice) WriteSector(sector uint32, buf []byte) *kernel.Error {
	if d.failWrites {
		return errDevice
	}
	return d.Device.WriteSector(sector, buf)
}

func (d *failingDevice) ReadSector(sector uint32, buf []byte) *kernel.Error {
	if d.failReads {
		return errDevice
	}
	return d.Device.ReadSector(sector, buf)
}

func TestSwapDeviceErrors(t *testing.T) {
	dev := &failingDevice{Device: block.NewMemDevice(SectorsPerSlot)}
	store := NewStore(dev)

	dev.failWrites = true
	if _, err := store.SwapOut(pattern(0)); err != errDevice {
		t.Fatalf("expected device error; got %v", err)
	}
	if got := store.UsedSlots(); got != 0 {
		t.Fatalf("expected failed swap-out to release its slot; %d slots in use", got)
	}

	dev.failWrites = false
	slot, err := store.SwapOut(pattern(0))
	if err != nil {
		t.Fatal(err)
	}

	dev.failReads = true
	if err := store.SwapIn(slot, make([]byte, mm.PageSize)); err != errDevice {
		t.Fatalf("expected device error; got %v", err)
	}
	if !store.InUse(slot) {
		t.Fatal("expected failed swap-in to keep the slot reserved")
	}

	if _, err := store.SwapOut(make([]byte, 10)); err != errPageSize {
		t.Fatalf("expected errPageSize; got %v", err)
	}
}
