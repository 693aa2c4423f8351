package kernel

import (
	"errors"
	"io"
	"testing"
)

func TestKernelError(t *testing.T) {
	err := &Error{
		Module:  "foo",
		Message: "error message",
	}

	if err.Error() != err.Message {
		t.Fatalf("expected to err.Error() to return %q; got %q", err.Message, err.Error())
	}
}

func TestWrap(t *testing.T) {
	template := &Error{Module: "swap", Message: "device read failed"}
	err := Wrap(template, io.ErrUnexpectedEOF)

	if exp, got := "device read failed: unexpected EOF", err.Error(); got != exp {
		t.Fatalf("expected err.Error() to return %q; got %q", exp, got)
	}

	if !errors.Is(err, template) {
		t.Error("expected wrapped error to match its template")
	}

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected wrapped error to match its cause")
	}

	if errors.Is(err, &Error{Module: "swap", Message: "other"}) {
		t.Error("expected wrapped error not to match an unrelated error")
	}
}
