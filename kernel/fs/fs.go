// Package fs defines the file primitive consumed by the virtual memory
// subsystem (demand loading and write-back) along with in-memory and
// host-backed implementations. Every read and write is serialized by a single
// global file-system lock.
package fs

import (
	"govm/kernel"
	"govm/kernel/sync"
)

var (
	// fsLock is the global file-system lock. Implementations acquire it
	// around each read or write call.
	fsLock sync.Spinlock

	// ErrClosed is returned when operating on a closed file handle.
	ErrClosed = &kernel.Error{Module: "fs", Message: "file handle is closed"}

	errNegativeOffset = &kernel.Error{Module: "fs", Message: "negative file offset"}
	errOpenFailed     = &kernel.Error{Module: "fs", Message: "unable to open file"}
	errIOFailed       = &kernel.Error{Module: "fs", Message: "file I/O failed"}
)

// File is an open file handle. Reads past the end of the file return fewer
// bytes than requested; writes never extend the file.
type File interface {
	// ReadAt reads up to len(p) bytes starting at off.
	ReadAt(p []byte, off int64) (int, *kernel.Error)

	// WriteAt writes up to len(p) bytes starting at off without growing
	// the file.
	WriteAt(p []byte, off int64) (int, *kernel.Error)

	// Length returns the file size in bytes.
	Length() int64

	// Reopen returns a new, independent handle to the same file.
	Reopen() (File, *kernel.Error)

	// Close releases the handle. Closing a handle twice fails.
	Close() *kernel.Error
}
