// Package kmain boots the virtual memory subsystem: it sets up the physical
// frame pool, the swap device and the frame table described by a Config.
package kmain

import (
	"bytes"

	"govm/kernel"
	"govm/kernel/block"
	"govm/kernel/kfmt"
	"govm/kernel/mm"
	"govm/kernel/mm/frame"
	"govm/kernel/mm/pmm"
	"govm/kernel/mm/swap"
	"govm/kernel/vm"
)

const swapSectorsPerSlot = swap.SectorsPerSlot

// closer is implemented by swap devices backed by a host resource.
type closer interface {
	Close() *kernel.Error
}

var (
	// shutdownList holds the resources released by Shutdown in reverse
	// boot order.
	shutdownList []closer

	// The following functions are used by tests to mock calls to the
	// device constructors.
	openFileDeviceFn = func(path string, sectors uint32) (block.Device, *kernel.Error) {
		dev, err := block.OpenFileDevice(path, sectors)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	openBoltDeviceFn = func(path string, sectors uint32) (block.Device, *kernel.Error) {
		dev, err := block.OpenBoltDevice(path, sectors)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
)

// Boot initializes the physical allocator, the swap device, the swap store
// and the frame table described by cfg and returns the paging system that
// address spaces are created from.
func Boot(cfg Config) (*vm.System, *kernel.Error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mem, err := pmm.NewBitmapAllocator(mm.Frame(cfg.FirstFrame), cfg.Frames)
	if err != nil {
		return nil, err
	}

	dev, err := openSwapDevice(cfg)
	if err != nil {
		_ = mem.Close()
		return nil, err
	}

	shutdownList = append(shutdownList, mem)
	if c, ok := dev.(closer); ok {
		shutdownList = append(shutdownList, c)
	}

	store := swap.NewStore(dev)

	var bootLog bytes.Buffer
	w := kfmt.NewPrefixWriter(&bootLog, cfg.LogPrefix)
	kfmt.Fprintf(w, "physical memory: %d frames (%dKb)\n", cfg.Frames, mm.Size(cfg.Frames)*mm.Size(mm.PageSize)/mm.Kb)
	kfmt.Fprintf(w, "swap: %s device, %d slots\n", cfg.SwapBackend, store.SlotCount())
	kfmt.Printf("%s", bootLog.Bytes())

	return vm.NewSystem(frame.NewTable(mem, store), store), nil
}

// Shutdown releases the host resources acquired by Boot. The first error is
// returned but every resource is released.
func Shutdown() *kernel.Error {
	var firstErr *kernel.Error
	for i := len(shutdownList) - 1; i >= 0; i-- {
		if err := shutdownList[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	shutdownList = nil
	return firstErr
}

func openSwapDevice(cfg Config) (block.Device, *kernel.Error) {
	switch cfg.SwapBackend {
	case SwapFile:
		return openFileDeviceFn(cfg.SwapImage, cfg.SwapSectors)
	case SwapBolt:
		return openBoltDeviceFn(cfg.SwapImage, cfg.SwapSectors)
	default:
		return block.NewMemDevice(cfg.SwapSectors), nil
	}
}
