// Package block defines the sector-addressed block device primitive consumed
// by the swap store, together with host-backed device implementations.
package block

import (
	"govm/kernel"
)

// SectorSize is the size of a device sector in bytes.
const SectorSize = 512

var (
	// ErrSectorOutOfRange is returned when a sector index exceeds the
	// device size.
	ErrSectorOutOfRange = &kernel.Error{Module: "block", Message: "sector index out of range"}

	// ErrBufferSize is returned when the caller buffer is not exactly
	// SectorSize bytes long.
	ErrBufferSize = &kernel.Error{Module: "block", Message: "buffer size does not match the sector size"}

	errDeviceClosed = &kernel.Error{Module: "block", Message: "device has been closed"}
	errReadFailed   = &kernel.Error{Module: "block", Message: "sector read failed"}
	errWriteFailed  = &kernel.Error{Module: "block", Message: "sector write failed"}
	errOpenFailed   = &kernel.Error{Module: "block", Message: "unable to open device image"}
	errNoSectors    = &kernel.Error{Module: "block", Message: "device must contain at least one sector"}
)

// Device is a block device that reads and writes whole sectors.
type Device interface {
	// SectorCount returns the number of sectors on the device.
	SectorCount() uint32

	// ReadSector reads sector into buf which must be SectorSize bytes long.
	ReadSector(sector uint32, buf []byte) *kernel.Error

	// WriteSector writes buf, which must be SectorSize bytes long, to sector.
	WriteSector(sector uint32, buf []byte) *kernel.Error
}

// checkAccess validates the arguments of a sector transfer.
func checkAccess(dev Device, sector uint32, buf []byte) *kernel.Error {
	if sector >= dev.SectorCount() {
		return ErrSectorOutOfRange
	}
	if len(buf) != SectorSize {
		return ErrBufferSize
	}
	return nil
}
