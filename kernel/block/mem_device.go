package block

import (
	"govm/kernel"
	"govm/kernel/sync"
)

// MemDevice is a block device backed by host memory.
type MemDevice struct {
	lock    sync.Spinlock
	sectors uint32
	data    []byte
}

// NewMemDevice returns a zero-filled in-memory device with the given number
// of sectors.
func NewMemDevice(sectors uint32) *MemDevice {
	return &MemDevice{
		sectors: sectors,
		data:    make([]byte, uint64(sectors)*SectorSize),
	}
}

// SectorCount returns the number of sectors on the device.
func (d *MemDevice) SectorCount() uint32 { return d.sectors }

// ReadSector reads sector into buf.
func (d *MemDevice) ReadSector(sector uint32, buf []byte) *kernel.Error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}

	d.lock.Acquire()
	copy(buf, d.data[uint64(sector)*SectorSize:])
	d.lock.Release()
	return nil
}

// WriteSector writes buf to sector.
func (d *MemDevice) WriteSector(sector uint32, buf []byte) *kernel.Error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}

	d.lock.Acquire()
	copy(d.data[uint64(sector)*SectorSize:], buf)
	d.lock.Release()
	return nil
}
