package block

import (
	"encoding/binary"
	"time"

	"govm/kernel"

	bolt "go.etcd.io/bbolt"
)

var sectorBucket = []byte("sectors")

// BoltDevice is a block device whose sectors are stored in a bbolt database.
// Sectors that were never written read back as zeroes.
type BoltDevice struct {
	db      *bolt.DB
	sectors uint32
}

// OpenBoltDevice opens (creating it if needed) a bbolt-backed device at path.
func OpenBoltDevice(path string, sectors uint32) (*BoltDevice, *kernel.Error) {
	if sectors == 0 {
		return nil, errNoSectors
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second, NoSync: true})
	if err != nil {
		return nil, kernel.Wrap(errOpenFailed, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sectorBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, kernel.Wrap(errOpenFailed, err)
	}

	return &BoltDevice{db: db, sectors: sectors}, nil
}

// SectorCount returns the number of sectors on the device.
func (d *BoltDevice) SectorCount() uint32 { return d.sectors }

// ReadSector reads sector into buf.
func (d *BoltDevice) ReadSector(sector uint32, buf []byte) *kernel.Error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}

	err := d.db.View(func(tx *bolt.Tx) error {
		// The value slice is only valid for the lifetime of the
		// transaction so it must be copied out.
		if v := tx.Bucket(sectorBucket).Get(sectorKey(sector)); v != nil {
			copy(buf, v)
			return nil
		}
		kernel.Memset(buf, 0)
		return nil
	})
	if err != nil {
		return kernel.Wrap(errReadFailed, err)
	}
	return nil
}

// WriteSector writes buf to sector.
func (d *BoltDevice) WriteSector(sector uint32, buf []byte) *kernel.Error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}

	err := d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sectorBucket).Put(sectorKey(sector), append([]byte(nil), buf...))
	})
	if err != nil {
		return kernel.Wrap(errWriteFailed, err)
	}
	return nil
}

// Close closes the underlying database.
func (d *BoltDevice) Close() *kernel.Error {
	if err := d.db.Close(); err != nil {
		return kernel.Wrap(errDeviceClosed, err)
	}
	return nil
}

func sectorKey(sector uint32) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], sector)
	return key[:]
}
