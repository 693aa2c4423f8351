package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestPrintfBuffersUntilSinkAttached(t *testing.T) {
	defer SetOutputSink(nil)

	// Drain anything buffered by earlier tests
	SetOutputSink(io.Discard)
	SetOutputSink(nil)

	Printf("frame table: %d frames\n", 16)
	Printf("swap: %s", "ready")

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "frame table: 16 frames\nswap: ready", buf.String(); got != exp {
		t.Fatalf("expected early output %q to be flushed; got %q", exp, got)
	}

	buf.Reset()
	Printf("evicted %x", 0x8000)
	if exp, got := "evicted 8000", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}

	if GetOutputSink() != &buf {
		t.Fatal("expected GetOutputSink to return the attached sink")
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%s: exit(%d)\n", "child", -1)

	if exp, got := "child: exit(-1)\n", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}
