package block

import (
	"os"

	"govm/kernel"
)

// FileDevice is a block device backed by a host disk image.
type FileDevice struct {
	file    *os.File
	sectors uint32
}

// OpenFileDevice opens (creating it if needed) the image at path and sizes it
// to hold the requested number of sectors.
func OpenFileDevice(path string, sectors uint32) (*FileDevice, *kernel.Error) {
	if sectors == 0 {
		return nil, errNoSectors
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, kernel.Wrap(errOpenFailed, err)
	}

	if err = f.Truncate(int64(sectors) * SectorSize); err != nil {
		_ = f.Close()
		return nil, kernel.Wrap(errOpenFailed, err)
	}

	return &FileDevice{file: f, sectors: sectors}, nil
}

// SectorCount returns the number of sectors on the device.
func (d *FileDevice) SectorCount() uint32 { return d.sectors }

// ReadSector reads sector into buf.
func (d *FileDevice) ReadSector(sector uint32, buf []byte) *kernel.Error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}
	if d.file == nil {
		return errDeviceClosed
	}

	if err := preadFull(d.file, buf, int64(sector)*SectorSize); err != nil {
		return kernel.Wrap(errReadFailed, err)
	}
	return nil
}

// WriteSector writes buf to sector.
func (d *FileDevice) WriteSector(sector uint32, buf []byte) *kernel.Error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}
	if d.file == nil {
		return errDeviceClosed
	}

	if err := pwriteFull(d.file, buf, int64(sector)*SectorSize); err != nil {
		return kernel.Wrap(errWriteFailed, err)
	}
	return nil
}

// Close releases the image file.
func (d *FileDevice) Close() *kernel.Error {
	if d.file == nil {
		return nil
	}

	err := d.file.Close()
	d.file = nil
	if err != nil {
		return kernel.Wrap(errDeviceClosed, err)
	}
	return nil
}
