package memory

import (
	"fmt"

	"github.com/google/btree"
)

type RegionKind int

const (
	// Anonymous regions are created by mmap and are the only ones munmap
	// may remove.
	Anonymous RegionKind = iota
	Image
	Stack
	Heap
)

func (k RegionKind) String() string {
	switch k {
	case Anonymous:
		return "anon"
	case Image:
		return "image"
	case Stack:
		return "stack"
	case Heap:
		return "heap"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Region is a page-aligned range of an address space with uniform
// permissions.
type Region struct {
	AddrRange
	Perms AccessType
	Kind  RegionKind
}

func (r Region) String() string {
	return fmt.Sprintf("%v %s %s", r.AddrRange, r.Perms, r.Kind)
}

// regionSet keeps non-overlapping regions ordered by start address.
type regionSet struct {
	tree *btree.BTreeG[Region]
}

func newRegionSet() regionSet {
	return regionSet{
		tree: btree.NewG(8, func(a, b Region) bool {
			return a.Start < b.Start
		}),
	}
}

func (s regionSet) insert(r Region) {
	if _, dup := s.tree.ReplaceOrInsert(r); dup {
		panic(fmt.Sprintf("region %v replaced an existing region", r))
	}
}

func (s regionSet) remove(r Region) {
	if _, ok := s.tree.Delete(r); !ok {
		panic(fmt.Sprintf("region %v is not in the set", r))
	}
}

// find returns the region containing addr.
func (s regionSet) find(addr Addr) (Region, bool) {
	var (
		found Region
		ok    bool
	)

	s.tree.DescendLessOrEqual(Region{AddrRange: AddrRange{Start: addr}}, func(r Region) bool {
		found, ok = r, r.Contains(addr)
		return false
	})

	return found, ok
}

// overlapping returns, in address order, every region sharing an address
// with ar.
func (s regionSet) overlapping(ar AddrRange) []Region {
	var out []Region

	if ar.Length() == 0 {
		return nil
	}

	// Only the closest region starting at or before ar.Start can reach into
	// ar from the left.
	s.tree.DescendLessOrEqual(Region{AddrRange: AddrRange{Start: ar.Start}}, func(r Region) bool {
		if r.Overlaps(ar) {
			out = append(out, r)
		}
		return false
	})

	s.tree.AscendGreaterOrEqual(Region{AddrRange: AddrRange{Start: ar.Start}}, func(r Region) bool {
		if r.Start >= ar.End {
			return false
		}
		if r.Start != ar.Start {
			out = append(out, r)
		}
		return true
	})

	return out
}

func (s regionSet) all() []Region {
	out := make([]Region, 0, s.tree.Len())

	s.tree.Ascend(func(r Region) bool {
		out = append(out, r)
		return true
	})

	return out
}
