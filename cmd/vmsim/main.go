// Command vmsim boots the virtual memory subsystem on the host and runs a
// paging workload: several processes touch more memory than the frame pool
// holds, forcing pages out to swap and back.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	gosync "sync"

	"govm/kernel"
	"govm/kernel/fs"
	"govm/kernel/kfmt"
	"govm/kernel/kmain"
	"govm/kernel/mm"
	"govm/kernel/vm"
)

var (
	configPath = flag.String("config", "", "path to a JSON machine configuration")
	procCount  = flag.Int("procs", 4, "number of concurrent processes")
	pageCount  = flag.Int("pages", 32, "number of heap pages touched by each process")
)

// mapBase is the address where each process maps its file.
const mapBase = uintptr(0x10000000)

func main() {
	flag.Parse()
	kfmt.SetOutputSink(os.Stdout)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vmsim: %s\n", err.Error())
		os.Exit(1)
	}
}

func run() *kernel.Error {
	cfg := kmain.DefaultConfig()
	if *configPath != "" {
		var err *kernel.Error
		if cfg, err = kmain.LoadConfig(*configPath); err != nil {
			return err
		}
	}

	sys, err := kmain.Boot(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := kmain.Shutdown(); err != nil {
			kfmt.Printf("shutdown: %s\n", err.Error())
		}
	}()

	var (
		wg     gosync.WaitGroup
		errors = make([]*kernel.Error, *procCount)
	)
	for i := 0; i < *procCount; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errors[i] = runProcess(sys, fmt.Sprintf("proc%d", i), byte(i+1), *pageCount)
		}(i)
	}
	wg.Wait()

	for _, err := range errors {
		if err != nil {
			return err
		}
	}

	stats := sys.Stats()
	kfmt.Printf("resident frames: %d\nevictions: %d\nswap slots used: %d/%d\n",
		stats.ResidentFrames, stats.Evictions, stats.SwapSlotsUsed, stats.SwapSlots)
	return nil
}

// runProcess grows the stack of a fresh process by pageCount pages, writes a
// pattern to each page, maps a file, modifies it and checks every byte
// before tearing the process down.
func runProcess(sys *vm.System, name string, seed byte, pageCount int) *kernel.Error {
	as := sys.NewAddressSpace(name)
	defer as.Destroy()

	sp, err := as.SetupStack()
	if err != nil {
		return err
	}

	// Grow the stack one page at a time, the way a deep call chain does.
	limit := int(mm.MaxStackSize/mm.PageSize) - 1
	if pageCount > limit {
		pageCount = limit
	}

	page := make([]byte, mm.PageSize)
	for i := 0; i < pageCount; i++ {
		sp -= mm.PageSize
		kernel.Memset(page, seed+byte(i))
		if _, err = as.Write(sp, page, sp); err != nil {
			return err
		}
	}

	for i := 0; i < pageCount; i++ {
		addr := mm.PhysBase - mm.PageSize*uintptr(i+1)
		if _, err = as.Read(addr, page, sp); err != nil {
			return err
		}

		if exp := seed + byte(i); page[0] != exp || page[mm.PageSize-1] != exp {
			return &kernel.Error{Module: "vmsim", Message: fmt.Sprintf("%s: page at 0x%x lost its contents", name, addr)}
		}
	}

	file := fs.NewMemFile(bytes.Repeat([]byte{'.'}, int(mm.PageSize)+100))
	id, err := as.Map(file, mapBase)
	if err != nil {
		return err
	}

	if _, err = as.Write(mapBase+mm.PageSize+10, []byte(name), sp); err != nil {
		return err
	}

	if err = as.Unmap(id); err != nil {
		return err
	}

	if contents := file.Bytes(); !bytes.Equal(contents[mm.PageSize+10:int(mm.PageSize)+10+len(name)], []byte(name)) {
		return &kernel.Error{Module: "vmsim", Message: name + ": mapped file was not written back"}
	}

	return nil
}
