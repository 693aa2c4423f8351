package vm

import (
	"sort"

	"govm/kernel"
	"govm/kernel/fs"
	"govm/kernel/mm"
	"govm/kernel/mm/spt"
)

var (
	// ErrUnknownMapping is returned by Unmap for ids that do not refer to
	// a live mapping.
	ErrUnknownMapping = &kernel.Error{Module: "vm", Message: "unknown mapping id"}

	errNilFile        = &kernel.Error{Module: "vm", Message: "cannot map a nil file"}
	errBadMapBase     = &kernel.Error{Module: "vm", Message: "mapping address must be a non-zero page-aligned user address"}
	errEmptyFile      = &kernel.Error{Module: "vm", Message: "cannot map an empty file"}
	errMapOutOfRange  = &kernel.Error{Module: "vm", Message: "mapping does not fit in user space"}
	errMapOverlap     = &kernel.Error{Module: "vm", Message: "mapping overlaps existing pages"}
	errShortWriteBack = &kernel.Error{Module: "vm", Message: "short write while writing back mapped page"}
)

// MapID identifies a memory-mapped file within an address space.
type MapID uint32

// Mapping is a file mapped into an address space. It owns a private handle
// to the file and the descriptors of the pages it covers.
type Mapping struct {
	id    MapID
	file  fs.File
	base  uintptr
	pages []*spt.Descriptor
}

// ID returns the mapping id.
func (m *Mapping) ID() MapID { return m.id }

// Base returns the first virtual address of the mapping.
func (m *Mapping) Base() uintptr { return m.base }

// PageCount returns the number of pages covered by the mapping.
func (m *Mapping) PageCount() int { return len(m.pages) }

// Map maps the contents of file at base. Pages are loaded lazily on first
// access; the tail of the last page past the end of the file reads as
// zeroes. The mapping keeps working after the caller closes file.
func (as *AddressSpace) Map(file fs.File, base uintptr) (MapID, *kernel.Error) {
	if file == nil {
		return 0, errNilFile
	}
	if base < mm.UserBase || !mm.IsPageAligned(base) {
		return 0, errBadMapBase
	}

	length := file.Length()
	if length <= 0 {
		return 0, errEmptyFile
	}

	pageCount := mm.Size(length).Pages()
	if end := base + pageCount<<mm.PageShift; end > mm.PhysBase || end < base {
		return 0, errMapOutOfRange
	}

	as.lock.Acquire()
	defer as.lock.Release()

	if as.terminated {
		return 0, errTerminated
	}

	first := mm.PageFromAddress(base)
	for page := first; page < first+mm.Page(pageCount); page++ {
		if as.pages.Lookup(page) != nil {
			return 0, errMapOverlap
		}
	}

	reopened, err := file.Reopen()
	if err != nil {
		return 0, err
	}

	m := &Mapping{id: as.nextMapID, file: reopened, base: base}
	for i := uintptr(0); i < pageCount; i++ {
		offset := int64(i << mm.PageShift)
		readBytes := uint32(mm.PageSize)
		if remaining := length - offset; remaining < int64(mm.PageSize) {
			readBytes = uint32(remaining)
		}

		d, err := as.pages.InsertFileBacked(first+mm.Page(i), true, reopened, offset, readBytes, uint32(mm.PageSize)-readBytes)
		if err != nil {
			for _, inserted := range m.pages {
				_, _ = as.pages.Remove(inserted.Page())
			}
			_ = reopened.Close()
			return 0, err
		}
		m.pages = append(m.pages, d)
	}

	as.mappings[m.id] = m
	as.nextMapID++
	return m.id, nil
}

// Unmap removes the mapping with the given id. Pages that were modified are
// written back to the file first. Unmapping an id twice fails with
// ErrUnknownMapping and has no other effect.
func (as *AddressSpace) Unmap(id MapID) *kernel.Error {
	as.lock.Acquire()
	defer as.lock.Release()

	m, ok := as.mappings[id]
	if !ok {
		return ErrUnknownMapping
	}
	return as.unmap(m)
}

// Mappings returns the live mappings in id order.
func (as *AddressSpace) Mappings() []*Mapping {
	as.lock.Acquire()
	defer as.lock.Release()
	return as.sortedMappings()
}

// unmap tears down a mapping. Every page is released even if writing back
// one of them fails; the first error is returned.
func (as *AddressSpace) unmap(m *Mapping) *kernel.Error {
	var firstErr *kernel.Error

	for _, d := range m.pages {
		writeBack := func(data []byte) *kernel.Error {
			n, err := m.file.WriteAt(data[:d.ReadBytes()], d.Offset())
			if err != nil {
				return err
			}
			if n != int(d.ReadBytes()) {
				return errShortWriteBack
			}
			return nil
		}

		if err := as.sys.frames.Reclaim(d, as.pdt, writeBack); err != nil && firstErr == nil {
			firstErr = err
		}

		as.pdt.Remove(d.Page())
		if _, err := as.pages.Remove(d.Page()); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := m.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	delete(as.mappings, m.id)
	return firstErr
}

func (as *AddressSpace) sortedMappings() []*Mapping {
	list := make([]*Mapping, 0, len(as.mappings))
	for _, m := range as.mappings {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}
