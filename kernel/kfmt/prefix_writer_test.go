package kfmt

import (
	"bytes"
	"errors"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	specs := []struct {
		input string
		exp   string
	}{
		{
			"",
			"",
		},
		{
			"\n",
			"[swap] \n",
		},
		{
			"no line break anywhere",
			"[swap] no line break anywhere",
		},
		{
			"line feed at the end\n",
			"[swap] line feed at the end\n",
		},
		{
			"\nslot 0 written\nslot 1 written\ndevice",
			"[swap] \n[swap] slot 0 written\n[swap] slot 1 written\n[swap] device",
		},
	}

	var buf bytes.Buffer
	for specIndex, spec := range specs {
		buf.Reset()
		w := NewPrefixWriter(&buf, "[swap] ")

		wrote, err := w.Write([]byte(spec.input))
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
		}

		if expLen := len(spec.input); expLen != wrote {
			t.Errorf("[spec %d] expected writer to write %d bytes; wrote %d", specIndex, expLen, wrote)
		}

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected output:\n%q\ngot:\n%q", specIndex, spec.exp, got)
		}
	}
}

func TestPrefixWriterAcrossWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewPrefixWriter(&buf, "> ")

	_, _ = w.Write([]byte("partial "))
	_, _ = w.Write([]byte("line\nnext"))

	if exp, got := "> partial line\n> next", buf.String(); got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}
}

type failingWriter struct{}

func (failingWriter) Write(_ []byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestPrefixWriterErrors(t *testing.T) {
	w := NewPrefixWriter(failingWriter{}, "prefix: ")

	if _, err := w.Write([]byte("hello")); err == nil {
		t.Fatal("expected an error")
	}
}
