package block

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestDevices(t *testing.T) {
	dir := t.TempDir()

	fileDev, err := OpenFileDevice(filepath.Join(dir, "swap.img"), 16)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = fileDev.Close() }()

	boltDev, err := OpenBoltDevice(filepath.Join(dir, "swap.db"), 16)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = boltDev.Close() }()

	specs := []struct {
		name string
		dev  Device
	}{
		{"memory", NewMemDevice(16)},
		{"file", fileDev},
		{"bolt", boltDev},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			if got := spec.dev.SectorCount(); got != 16 {
				t.Fatalf("expected 16 sectors; got %d", got)
			}

			// Unwritten sectors read back as zeroes
			buf := bytes.Repeat([]byte{0xff}, SectorSize)
			if err := spec.dev.ReadSector(3, buf); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf, make([]byte, SectorSize)) {
				t.Fatal("expected unwritten sector to be zero-filled")
			}

			for sector := uint32(0); sector < 16; sector++ {
				if err := spec.dev.WriteSector(sector, bytes.Repeat([]byte{byte(sector + 1)}, SectorSize)); err != nil {
					t.Fatalf("[sector %d] unexpected error: %v", sector, err)
				}
			}

			for sector := uint32(0); sector < 16; sector++ {
				if err := spec.dev.ReadSector(sector, buf); err != nil {
					t.Fatalf("[sector %d] unexpected error: %v", sector, err)
				}
				if exp := bytes.Repeat([]byte{byte(sector + 1)}, SectorSize); !bytes.Equal(buf, exp) {
					t.Fatalf("[sector %d] sector contents mismatch", sector)
				}
			}

			if err := spec.dev.ReadSector(16, buf); err != ErrSectorOutOfRange {
				t.Fatalf("expected ErrSectorOutOfRange; got %v", err)
			}

			if err := spec.dev.WriteSector(0, buf[:10]); err != ErrBufferSize {
				t.Fatalf("expected ErrBufferSize; got %v", err)
			}
		})
	}
}

func TestFileDevicePersistsImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swap.img")

	dev, err := OpenFileDevice(path, 2)
	if err != nil {
		t.Fatal(err)
	}

	data := bytes.Repeat([]byte{0x5a}, SectorSize)
	if err := dev.WriteSector(1, data); err != nil {
		t.Fatal(err)
	}
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}

	if err := dev.ReadSector(1, data); err != errDeviceClosed {
		t.Fatalf("expected errDeviceClosed; got %v", err)
	}

	dev, err = OpenFileDevice(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = dev.Close() }()

	buf := make([]byte, SectorSize)
	if err := dev.ReadSector(1, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data) {
		t.Fatal("expected sector contents to survive reopening the image")
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := OpenFileDevice(filepath.Join(t.TempDir(), "a.img"), 0); err != errNoSectors {
		t.Fatalf("expected errNoSectors; got %v", err)
	}

	if _, err := OpenBoltDevice(filepath.Join(t.TempDir(), "a.db"), 0); err != errNoSectors {
		t.Fatalf("expected errNoSectors; got %v", err)
	}

	if _, err := OpenFileDevice(filepath.Join(t.TempDir(), "missing", "a.img"), 1); err == nil {
		t.Fatal("expected an error when the image directory does not exist")
	}
}
