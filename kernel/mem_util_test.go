package kernel

import "testing"

func TestMemset(t *testing.T) {
	// Memset with a 0 size should be a no-op
	Memset(nil, 0xff)

	for sizeIndex, size := range []int{1, 3, 4096, 4095} {
		buf := make([]byte, size)
		Memset(buf, 0xf8)

		for i, b := range buf {
			if b != 0xf8 {
				t.Errorf("[size %d] expected byte %d to be 0xf8; got 0x%x", sizeIndex, i, b)
				break
			}
		}
	}
}

func TestMemcopy(t *testing.T) {
	src := []byte("page contents")
	dst := make([]byte, 4)

	if n := Memcopy(src, dst); n != 4 {
		t.Fatalf("expected Memcopy to copy 4 bytes; copied %d", n)
	}

	if got := string(dst); got != "page" {
		t.Fatalf("expected dst to contain %q; got %q", "page", got)
	}
}
