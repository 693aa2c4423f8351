package fs

import (
	"errors"
	"io"
	"os"

	"govm/kernel"
)

// HostFile is a handle to a file on the host file system.
type HostFile struct {
	path string
	file *os.File
}

// Open opens the host file at path for reading and writing.
func Open(path string) (*HostFile, *kernel.Error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, kernel.Wrap(errOpenFailed, err)
	}
	return &HostFile{path: path, file: f}, nil
}

// ReadAt reads up to len(p) bytes starting at off.
func (f *HostFile) ReadAt(p []byte, off int64) (int, *kernel.Error) {
	fsLock.Acquire()
	defer fsLock.Release()

	if f.file == nil {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, errNegativeOffset
	}

	n, err := f.file.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, kernel.Wrap(errIOFailed, err)
	}
	return n, nil
}

// WriteAt writes up to len(p) bytes starting at off without growing the file.
func (f *HostFile) WriteAt(p []byte, off int64) (int, *kernel.Error) {
	fsLock.Acquire()
	defer fsLock.Release()

	if f.file == nil {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, errNegativeOffset
	}

	size, kerr := f.size()
	if kerr != nil {
		return 0, kerr
	}
	if off >= size {
		return 0, nil
	}
	if remaining := size - off; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := f.file.WriteAt(p, off)
	if err != nil {
		return n, kernel.Wrap(errIOFailed, err)
	}
	return n, nil
}

// Length returns the file size in bytes or zero if it cannot be determined.
func (f *HostFile) Length() int64 {
	fsLock.Acquire()
	defer fsLock.Release()

	if f.file == nil {
		return 0
	}
	size, _ := f.size()
	return size
}

// Reopen opens the same path again and returns the new handle.
func (f *HostFile) Reopen() (File, *kernel.Error) {
	if f.file == nil {
		return nil, ErrClosed
	}
	return Open(f.path)
}

// Close releases the handle.
func (f *HostFile) Close() *kernel.Error {
	fsLock.Acquire()
	defer fsLock.Release()

	if f.file == nil {
		return ErrClosed
	}

	err := f.file.Close()
	f.file = nil
	if err != nil {
		return kernel.Wrap(errIOFailed, err)
	}
	return nil
}

func (f *HostFile) size() (int64, *kernel.Error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, kernel.Wrap(errIOFailed, err)
	}
	return info.Size(), nil
}
