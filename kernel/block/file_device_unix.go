//go:build unix

package block

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// preadFull reads len(buf) bytes at off using pread(2) so concurrent sector
// transfers never share a file offset.
func preadFull(f *os.File, buf []byte, off int64) error {
	fd := int(f.Fd())
	for len(buf) != 0 {
		n, err := unix.Pread(fd, buf, off)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		buf, off = buf[n:], off+int64(n)
	}
	return nil
}

// pwriteFull writes buf at off using pwrite(2).
func pwriteFull(f *os.File, buf []byte, off int64) error {
	fd := int(f.Fd())
	for len(buf) != 0 {
		n, err := unix.Pwrite(fd, buf, off)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		buf, off = buf[n:], off+int64(n)
	}
	return nil
}
