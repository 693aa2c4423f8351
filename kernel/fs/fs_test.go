package fs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestFiles(t *testing.T) {
	contents := []byte("hello, virtual memory")
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, contents, 0600); err != nil {
		t.Fatal(err)
	}

	hostFile, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		name string
		file File
	}{
		{"memory", NewMemFile(contents)},
		{"host", hostFile},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			f := spec.file

			if exp, got := int64(len(contents)), f.Length(); got != exp {
				t.Fatalf("expected Length() to return %d; got %d", exp, got)
			}

			buf := make([]byte, 64)
			n, err := f.ReadAt(buf, 7)
			if err != nil {
				t.Fatal(err)
			}
			if exp := "virtual memory"; string(buf[:n]) != exp {
				t.Fatalf("expected short read to return %q; got %q", exp, buf[:n])
			}

			if n, _ = f.ReadAt(buf, 100); n != 0 {
				t.Fatalf("expected read past EOF to return 0 bytes; got %d", n)
			}

			// Writes never extend the file
			n, err = f.WriteAt([]byte("VIRTUAL MEMORY!!"), 7)
			if err != nil {
				t.Fatal(err)
			}
			if exp := len("virtual memory"); n != exp {
				t.Fatalf("expected write to be truncated at EOF to %d bytes; wrote %d", exp, n)
			}
			if exp, got := int64(len(contents)), f.Length(); got != exp {
				t.Fatalf("expected file length to remain %d; got %d", exp, got)
			}

			// A reopened handle sees the same data and outlives the original
			reopened, err := f.Reopen()
			if err != nil {
				t.Fatal(err)
			}
			if err = f.Close(); err != nil {
				t.Fatal(err)
			}
			if err = f.Close(); err != ErrClosed {
				t.Fatalf("expected double close to return ErrClosed; got %v", err)
			}
			if _, err = f.ReadAt(buf, 0); err != ErrClosed {
				t.Fatalf("expected read on closed handle to return ErrClosed; got %v", err)
			}
			if _, err = f.Reopen(); err != ErrClosed {
				t.Fatalf("expected reopen on closed handle to return ErrClosed; got %v", err)
			}

			n, err = reopened.ReadAt(buf, 0)
			if err != nil {
				t.Fatal(err)
			}
			if exp := "hello, VIRTUAL MEMORY"; string(buf[:n]) != exp {
				t.Fatalf("expected reopened handle to read %q; got %q", exp, buf[:n])
			}

			if _, err = reopened.ReadAt(buf, -1); err != errNegativeOffset {
				t.Fatalf("expected errNegativeOffset; got %v", err)
			}

			if err = reopened.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestMemFileOpenCount(t *testing.T) {
	f := NewMemFile([]byte("abc"))
	r, _ := f.Reopen()

	if got := f.OpenCount(); got != 2 {
		t.Fatalf("expected 2 open handles; got %d", got)
	}

	_ = r.Close()
	_ = f.Close()

	if got := f.OpenCount(); got != 0 {
		t.Fatalf("expected 0 open handles; got %d", got)
	}

	if !bytes.Equal(f.Bytes(), []byte("abc")) {
		t.Fatal("expected Bytes to return the file contents")
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected an error")
	}
}
