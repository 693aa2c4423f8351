package frame

import (
	"govm/kernel"
	"govm/kernel/kfmt"
	"govm/kernel/mm"
	"govm/kernel/mm/swap"
	"govm/kernel/mm/vmm"
)

// evict selects a victim with the clock algorithm, writes it to swap and
// frees its frame. It must be called with the table lock held.
//
// If the swap write fails the victim stays resident but unmapped and the
// error is returned; the next access of its owner remaps it.
func (t *Table) evict() *kernel.Error {
	index := t.selectVictim()
	rec := &t.records[index]
	page := rec.desc.Page()

	unmap(rec.owner, page)
	dirty := rec.owner.IsDirty(page) || rec.desc.Dirty()

	slot, err := t.swap.SwapOut(t.mem.FrameData(rec.frame))
	switch {
	case err == swap.ErrFull:
		kfmt.Panic(err)
	case err != nil:
		return err
	}

	if err = rec.desc.CommitSwapped(slot, dirty); err != nil {
		kfmt.Panic(kernel.Wrap(errInconsistentFrame, err))
	}

	t.evictions++
	return t.drop(index)
}

// unmap clears the hardware mapping of page. A page whose eviction failed
// earlier is resident but no longer mapped, so ErrInvalidMapping is expected.
func unmap(owner PageTable, page mm.Page) {
	if err := owner.Unmap(page); err != nil && err != vmm.ErrInvalidMapping {
		kfmt.Printf("[frame] unable to unmap page 0x%x: %s\n", page.Address(), err.Error())
	}
}

// selectVictim advances the clock hand until it finds an unpinned frame whose
// accessed flags are clear. Frames that were accessed get a second chance:
// their flags are cleared and the hand moves on. Two full sweeps without a
// victim mean that every frame is pinned, which halts the kernel.
func (t *Table) selectVictim() int32 {
	for steps := 2 * t.count; steps > 0; steps-- {
		index := t.hand
		rec := &t.records[index]

		t.hand = rec.next
		if t.hand == noRecord {
			t.hand = t.head
		}

		if rec.pinned {
			continue
		}

		page := rec.desc.Page()
		if rec.accessed || rec.owner.IsAccessed(page) {
			rec.accessed = false
			rec.owner.SetAccessed(page, false)
			continue
		}

		return index
	}

	kfmt.Panic(errNoEvictableFrame)
	return noRecord
}
