// Package memory implements task address spaces: physical frames, page
// tables, the mapper behind mmap/munmap/sbrk, and the Translator that copies
// data across the user/kernel boundary.
package memory

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Layout describes the initial shape of an address space: the program image
// at ImageBase, one unmapped guard page, then the user stack. The heap starts
// empty at the top of the stack.
type Layout struct {
	ImageBase  Addr
	ImagePages int
	StackPages int
	Ceiling    Addr
}

// AddressSpace is the set of regions owned by one task.
type AddressSpace struct {
	mmu   *MMU
	token Token

	regions regionSet

	heapBottom Addr
	brk        Addr
	ceiling    Addr

	released bool
}

func NewAddressSpace(mmu *MMU, layout Layout) (*AddressSpace, error) {
	if !layout.ImageBase.IsPageAligned() || !layout.Ceiling.IsPageAligned() {
		return nil, errors.Wrapf(ErrMisaligned, "layout image=%v ceiling=%v", layout.ImageBase, layout.Ceiling)
	}

	maxPages := uint64(layout.Ceiling) / PageSize
	if layout.ImagePages <= 0 || layout.StackPages <= 0 ||
		uint64(layout.ImagePages) > maxPages || uint64(layout.StackPages) > maxPages {
		return nil, errors.Wrapf(ErrOutOfRange, "layout of %d image and %d stack pages under ceiling %v",
			layout.ImagePages, layout.StackPages, layout.Ceiling)
	}

	image, ok := layout.ImageBase.ToRange(uint64(layout.ImagePages) * PageSize)
	if !ok || image.End > layout.Ceiling {
		return nil, errors.Wrapf(ErrOutOfRange, "image ends beyond ceiling %v", layout.Ceiling)
	}

	stack, ok := (image.End + PageSize).ToRange(uint64(layout.StackPages) * PageSize)
	if !ok || stack.Start < image.End || stack.End > layout.Ceiling {
		return nil, errors.Wrapf(ErrOutOfRange, "stack ends beyond ceiling %v", layout.Ceiling)
	}

	pt, err := mmu.NewPageTable()
	if err != nil {
		return nil, err
	}

	as := &AddressSpace{
		mmu:        mmu,
		token:      pt.Token(),
		regions:    newRegionSet(),
		heapBottom: stack.End,
		brk:        stack.End,
		ceiling:    layout.Ceiling,
	}

	for _, reg := range []Region{
		{AddrRange: image, Perms: AnyAccess, Kind: Image},
		{AddrRange: stack, Perms: ReadWrite, Kind: Stack},
	} {
		if err := as.populate(reg.AddrRange, reg.Perms); err != nil {
			as.Release()
			return nil, err
		}

		as.regions.insert(reg)
	}

	return as, nil
}

// Token names the page table of the address space for the Translator.
func (as *AddressSpace) Token() Token {
	return as.token
}

func (as *AddressSpace) Break() Addr {
	return as.brk
}

func (as *AddressSpace) HeapBottom() Addr {
	return as.heapBottom
}

func (as *AddressSpace) Ceiling() Addr {
	return as.ceiling
}

func (as *AddressSpace) heap() AddrRange {
	top, _ := as.brk.RoundUp()
	return AddrRange{as.heapBottom, top}
}

// Regions returns every region, including a non-empty heap, in address
// order.
func (as *AddressSpace) Regions() []Region {
	out := as.regions.all()

	if heap := as.heap(); heap.Length() > 0 {
		out = append(out, Region{AddrRange: heap, Perms: ReadWrite, Kind: Heap})
		sort.Slice(out, func(i, j int) bool {
			return out[i].Start < out[j].Start
		})
	}

	return out
}

// FindRegion returns the region containing addr.
func (as *AddressSpace) FindRegion(addr Addr) (Region, bool) {
	if heap := as.heap(); heap.Contains(addr) {
		return Region{AddrRange: heap, Perms: ReadWrite, Kind: Heap}, true
	}

	return as.regions.find(addr)
}

// pageRange returns [start, start+length) with the end rounded up to a page.
func pageRange(start Addr, length uint64) (AddrRange, bool) {
	ar, ok := start.ToRange(length)
	if !ok {
		return AddrRange{}, false
	}

	if ar.End, ok = ar.End.RoundUp(); !ok {
		return AddrRange{}, false
	}

	return ar, true
}

func (as *AddressSpace) collides(ar AddrRange) bool {
	return as.heap().Overlaps(ar) || len(as.regions.overlapping(ar)) > 0
}

// Map creates an anonymous region of length bytes, rounded up to whole
// pages, at start. The pages are allocated and zeroed immediately.
func (as *AddressSpace) Map(start Addr, length uint64, perms AccessType) error {
	if !start.IsPageAligned() {
		return errors.Wrapf(ErrMisaligned, "map at %v", start)
	}

	if !perms.Valid() {
		return errors.Wrapf(ErrInvalidPermission, "map at %v with permissions %#x", start, uint8(perms))
	}

	ar, ok := pageRange(start, length)
	if !ok || ar.End > as.ceiling {
		return errors.Wrapf(ErrOutOfRange, "map at %v, length %#x, ceiling %v", start, length, as.ceiling)
	}

	if length == 0 {
		return nil
	}

	if as.collides(ar) {
		return errors.Wrapf(ErrOverlap, "map %v", ar)
	}

	if err := as.populate(ar, perms); err != nil {
		return err
	}

	as.regions.insert(Region{AddrRange: ar, Perms: perms, Kind: Anonymous})

	return nil
}

// Unmap removes length bytes, rounded up to whole pages, at start. Every page
// must belong to an anonymous region; regions that only partly overlap the
// range are shrunk or split.
func (as *AddressSpace) Unmap(start Addr, length uint64) error {
	if !start.IsPageAligned() {
		return errors.Wrapf(ErrMisaligned, "unmap at %v", start)
	}

	if length == 0 {
		return nil
	}

	ar, ok := pageRange(start, length)
	if !ok {
		return errors.Wrapf(ErrNotMapped, "unmap at %v, length %#x", start, length)
	}

	covered := as.regions.overlapping(ar)

	cursor := ar.Start
	for _, reg := range covered {
		if reg.Start > cursor {
			return errors.Wrapf(ErrNotMapped, "unmap %v: hole at %v", ar, cursor)
		}

		if reg.Kind != Anonymous {
			return errors.Wrapf(ErrNotMapped, "unmap %v: %v was not created by mmap", ar, reg)
		}

		cursor = reg.End
	}

	if cursor < ar.End {
		return errors.Wrapf(ErrNotMapped, "unmap %v: hole at %v", ar, cursor)
	}

	for _, reg := range covered {
		as.regions.remove(reg)

		if reg.Start < ar.Start {
			left := reg
			left.End = ar.Start
			as.regions.insert(left)
		}

		if reg.End > ar.End {
			right := reg
			right.Start = ar.End
			as.regions.insert(right)
		}

		as.unpopulate(reg.Intersect(ar))
	}

	return nil
}

// AdjustBreak moves the program break by delta bytes and returns the old
// break. It returns false, leaving everything unchanged, if the new break
// would fall below the heap bottom, pass the ceiling, or need pages that
// another region already uses.
func (as *AddressSpace) AdjustBreak(delta int64) (Addr, bool) {
	old := as.brk

	var brk Addr

	if delta >= 0 {
		end, ok := old.AddLength(uint64(delta))
		if !ok {
			return old, false
		}
		brk = end
	} else {
		shrink := uint64(-delta)
		if shrink > uint64(old-as.heapBottom) {
			return old, false
		}
		brk = old - Addr(shrink)
	}

	if brk > as.ceiling {
		return old, false
	}

	oldTop, _ := old.RoundUp()
	newTop, _ := brk.RoundUp()

	switch {
	case newTop > oldTop:
		grow := AddrRange{oldTop, newTop}

		if len(as.regions.overlapping(grow)) > 0 {
			return old, false
		}

		if err := as.populate(grow, ReadWrite); err != nil {
			return old, false
		}
	case newTop < oldTop:
		as.unpopulate(AddrRange{newTop, oldTop})
	}

	as.brk = brk

	return old, true
}

// Release frees every page and the page table. The address space must not
// be used afterwards.
func (as *AddressSpace) Release() {
	if as.released {
		return
	}

	as.released = true

	for _, reg := range as.regions.all() {
		as.regions.remove(reg)
		as.unpopulate(reg.AddrRange)
	}

	as.unpopulate(as.heap())
	as.brk = as.heapBottom

	as.mmu.ReleasePageTable(as.token)
}

// populate backs every page of ar with a fresh frame. On failure the pages
// mapped so far are released again.
func (as *AddressSpace) populate(ar AddrRange, perms AccessType) error {
	for addr := ar.Start; addr < ar.End; addr += PageSize {
		fn, err := as.mmu.Frames.Alloc()
		if err != nil {
			as.unpopulate(AddrRange{ar.Start, addr})
			return errors.Wrapf(err, "populating %v", ar)
		}

		as.mmu.SetMapping(as.token, addr.Page(), PTE{
			Frame: fn,
			Perms: perms,
			User:  true,
		})
	}

	return nil
}

func (as *AddressSpace) unpopulate(ar AddrRange) {
	for addr := ar.Start; addr < ar.End; addr += PageSize {
		pte, ok := as.mmu.ClearMapping(as.token, addr.Page())
		if !ok {
			panic(fmt.Sprintf("page %v of a live region has no mapping", addr))
		}

		as.mmu.Frames.Free(pte.Frame)
	}
}
