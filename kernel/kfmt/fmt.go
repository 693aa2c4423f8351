// Package kfmt implements the kernel console output used by every memory
// management subsystem: a Printf that writes to a pluggable output sink,
// per-subsystem line prefixing and the kernel panic banner.
package kfmt

import (
	"fmt"
	"io"

	"govm/kernel/sync"
)

var (
	// outputLock serializes writes to the output sink; Printf may be
	// invoked concurrently from the fault path of several processes.
	outputLock sync.Spinlock

	// earlyPrintBuffer is a ring buffer that stores Printf output before an
	// output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputLock.Acquire()
	defer outputLock.Release()

	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the currently active output sink or nil if output is
// still being buffered.
func GetOutputSink() io.Writer {
	outputLock.Acquire()
	defer outputLock.Release()
	return outputSink
}

// Printf formats its arguments using the fmt verbs and writes the result to
// the active output sink. If no sink is attached, the output is buffered
// into a ring buffer and flushed to the first sink passed to SetOutputSink.
func Printf(format string, args ...interface{}) {
	outputLock.Acquire()
	defer outputLock.Release()

	if outputSink == nil {
		_, _ = fmt.Fprintf(&earlyPrintBuffer, format, args...)
		return
	}
	_, _ = fmt.Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes its output to w. Writes to w are
// serialized with the writes issued by Printf.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	outputLock.Acquire()
	defer outputLock.Release()
	_, _ = fmt.Fprintf(w, format, args...)
}
