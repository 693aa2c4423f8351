//go:build !unix

package block

import (
	"os"
)

func preadFull(f *os.File, buf []byte, off int64) error {
	_, err := f.ReadAt(buf, off)
	return err
}

func pwriteFull(f *os.File, buf []byte, off int64) error {
	_, err := f.WriteAt(buf, off)
	return err
}
