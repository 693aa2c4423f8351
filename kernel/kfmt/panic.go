package kfmt

import (
	"govm/kernel"
)

var (
	// haltFn is invoked after the panic banner has been printed. On a host
	// build the kernel halts by unwinding the faulting goroutine with the
	// panic error so that the embedding program (or a test) can observe it.
	haltFn = func(err *kernel.Error) { panic(err) }

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// kernel. Calls to Panic never return. Panic is reserved for violated kernel
// invariants such as the physical allocator and the frame table disagreeing
// on the number of committed frames.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t}
	case error:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t.Error()}
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Error())
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	if err == nil {
		err = errRuntimePanic
	}
	haltFn(err)
}
