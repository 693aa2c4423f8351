package fs

import (
	"govm/kernel"
)

// inode holds the contents shared by every handle of an in-memory file.
type inode struct {
	data      []byte
	openCount int
}

// MemFile is a handle to an in-memory file.
type MemFile struct {
	inode  *inode
	closed bool
}

// NewMemFile returns a handle to a new in-memory file initialized with a copy
// of data.
func NewMemFile(data []byte) *MemFile {
	return &MemFile{inode: &inode{data: append([]byte(nil), data...), openCount: 1}}
}

// ReadAt reads up to len(p) bytes starting at off.
func (f *MemFile) ReadAt(p []byte, off int64) (int, *kernel.Error) {
	fsLock.Acquire()
	defer fsLock.Release()

	if err := f.check(off); err != nil {
		return 0, err
	}
	if off >= int64(len(f.inode.data)) {
		return 0, nil
	}
	return copy(p, f.inode.data[off:]), nil
}

// WriteAt writes up to len(p) bytes starting at off without growing the file.
func (f *MemFile) WriteAt(p []byte, off int64) (int, *kernel.Error) {
	fsLock.Acquire()
	defer fsLock.Release()

	if err := f.check(off); err != nil {
		return 0, err
	}
	if off >= int64(len(f.inode.data)) {
		return 0, nil
	}
	return copy(f.inode.data[off:], p), nil
}

// Length returns the file size in bytes.
func (f *MemFile) Length() int64 {
	fsLock.Acquire()
	defer fsLock.Release()
	return int64(len(f.inode.data))
}

// Reopen returns a new handle to the same file.
func (f *MemFile) Reopen() (File, *kernel.Error) {
	fsLock.Acquire()
	defer fsLock.Release()

	if f.closed {
		return nil, ErrClosed
	}
	f.inode.openCount++
	return &MemFile{inode: f.inode}, nil
}

// Close releases the handle.
func (f *MemFile) Close() *kernel.Error {
	fsLock.Acquire()
	defer fsLock.Release()

	if f.closed {
		return ErrClosed
	}
	f.closed = true
	f.inode.openCount--
	return nil
}

// Bytes returns a copy of the file contents.
func (f *MemFile) Bytes() []byte {
	fsLock.Acquire()
	defer fsLock.Release()
	return append([]byte(nil), f.inode.data...)
}

// OpenCount returns the number of open handles to the file.
func (f *MemFile) OpenCount() int {
	fsLock.Acquire()
	defer fsLock.Release()
	return f.inode.openCount
}

func (f *MemFile) check(off int64) *kernel.Error {
	if f.closed {
		return ErrClosed
	}
	if off < 0 {
		return errNegativeOffset
	}
	return nil
}
