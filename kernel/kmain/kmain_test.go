package kmain

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"govm/kernel"
	"govm/kernel/block"
	"govm/kernel/kfmt"
	"govm/kernel/mm"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "machine.json")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{"frames": 8, "swap_backend": "file", "swap_image": "/tmp/swap.img"}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	exp := DefaultConfig()
	exp.Frames = 8
	exp.SwapBackend = SwapFile
	exp.SwapImage = "/tmp/swap.img"
	if cfg != exp {
		t.Fatalf("expected config %+v; got %+v", exp, cfg)
	}

	specs := []struct {
		contents string
		expErr   *kernel.Error
	}{
		{`{"frames": 8,`, errConfigDecode},
		{`{"frame_count": 8}`, errConfigDecode},
		{`{"frames": 0}`, errNoFrames},
		{`{"swap_backend": "tape"}`, errSwapBackend},
		{`{"swap_backend": "bolt"}`, errSwapImage},
		{`{"swap_sectors": 7}`, errSwapSize},
	}

	for specIndex, spec := range specs {
		if _, err := LoadConfig(writeConfig(t, spec.contents)); err == nil || !err.Is(spec.expErr) {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil || !err.Is(errConfigOpen) {
		t.Fatalf("expected errConfigOpen; got %v", err)
	}
}

func TestBoot(t *testing.T) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	specs := []struct {
		backend string
		image   string
	}{
		{SwapMemory, ""},
		{SwapFile, "swap.img"},
		{SwapBolt, "swap.db"},
	}

	for specIndex, spec := range specs {
		buf.Reset()

		cfg := DefaultConfig()
		cfg.Frames = 4
		cfg.SwapBackend = spec.backend
		cfg.SwapSectors = 64
		if spec.image != "" {
			cfg.SwapImage = filepath.Join(t.TempDir(), spec.image)
		}

		sys, err := Boot(cfg)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}

		stats := sys.Stats()
		if stats.SwapSlots != 8 || stats.ResidentFrames != 0 {
			t.Errorf("[spec %d] unexpected stats: %+v", specIndex, stats)
		}

		as := sys.NewAddressSpace("init")
		if _, err = as.SetupStack(); err != nil {
			t.Errorf("[spec %d] unable to set up stack: %v", specIndex, err)
		}
		as.Destroy()

		for _, exp := range []string{"[vm] physical memory: 4 frames (16Kb)\n", "[vm] swap: " + spec.backend + " device, 8 slots\n"} {
			if !strings.Contains(buf.String(), exp) {
				t.Errorf("[spec %d] expected boot log to contain %q; got:\n%s", specIndex, exp, buf.String())
			}
		}

		if err = Shutdown(); err != nil {
			t.Errorf("[spec %d] shutdown failed: %v", specIndex, err)
		}
	}
}

func TestBootErrors(t *testing.T) {
	defer func(origFile func(string, uint32) (block.Device, *kernel.Error)) {
		openFileDeviceFn = origFile
	}(openFileDeviceFn)

	cfg := DefaultConfig()
	cfg.Frames = 0
	if _, err := Boot(cfg); err != errNoFrames {
		t.Fatalf("expected errNoFrames; got %v", err)
	}

	expErr := &kernel.Error{Module: "test", Message: "device unavailable"}
	openFileDeviceFn = func(_ string, _ uint32) (block.Device, *kernel.Error) {
		return nil, expErr
	}

	cfg = DefaultConfig()
	cfg.SwapBackend = SwapFile
	cfg.SwapImage = "unused"
	if _, err := Boot(cfg); err != expErr {
		t.Fatalf("expected device error; got %v", err)
	}

	if len(shutdownList) != 0 {
		t.Fatal("expected failed boot to release the physical memory arena")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	if exp, got := mm.Size(1*mm.Mb), mm.Size(cfg.SwapSectors)*mm.Size(block.SectorSize); got != exp {
		t.Fatalf("expected default swap device of %d bytes; got %d", exp, got)
	}
}
