package memory

import "fmt"

const (
	PageShift = 12
	PageSize  = 1 << PageShift
)

// Addr is a user virtual address.
type Addr uint64

// PageOffset returns the offset of v into its page.
func (v Addr) PageOffset() uint64 {
	return uint64(v & (PageSize - 1))
}

func (v Addr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

func (v Addr) RoundDown() Addr {
	return v &^ (PageSize - 1)
}

// RoundUp returns v rounded up to a page boundary. ok is false if rounding
// wrapped around.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = (v + PageSize - 1).RoundDown()
	ok = addr >= v
	return
}

// Page returns the virtual page number of v.
func (v Addr) Page() uint64 {
	return uint64(v) >> PageShift
}

// AddLength returns v + length. ok is false if the sum wraps.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	ok = end >= v
	return
}

// ToRange returns [v, v+length). ok is false if the end wraps.
func (v Addr) ToRange(length uint64) (AddrRange, bool) {
	end, ok := v.AddLength(length)
	return AddrRange{v, end}, ok
}

func (v Addr) String() string {
	return fmt.Sprintf("%#x", uint64(v))
}

// AddrRange is the half-open range [Start, End).
type AddrRange struct {
	Start Addr
	End   Addr
}

func (ar AddrRange) Length() uint64 {
	return uint64(ar.End - ar.Start)
}

func (ar AddrRange) Pages() uint64 {
	return ar.Length() / PageSize
}

func (ar AddrRange) Contains(x Addr) bool {
	return ar.Start <= x && x < ar.End
}

// Overlaps is true if ar and x share at least one address.
func (ar AddrRange) Overlaps(x AddrRange) bool {
	return ar.Start < x.End && x.Start < ar.End
}

// Intersect returns the common part of ar and x, which may be empty.
func (ar AddrRange) Intersect(x AddrRange) AddrRange {
	if ar.Start < x.Start {
		ar.Start = x.Start
	}
	if ar.End > x.End {
		ar.End = x.End
	}
	if ar.End < ar.Start {
		ar.End = ar.Start
	}
	return ar
}

func (ar AddrRange) IsPageAligned() bool {
	return ar.Start.IsPageAligned() && ar.End.IsPageAligned()
}

func (ar AddrRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", uint64(ar.Start), uint64(ar.End))
}

// AccessType is a set of access permissions. The bit values are the ones
// user space passes to mmap.
type AccessType uint8

const (
	Read AccessType = 1 << iota
	Write
	Execute

	NoAccess  AccessType = 0
	ReadWrite            = Read | Write
	AnyAccess            = Read | Write | Execute
)

func (a AccessType) Read() bool    { return a&Read != 0 }
func (a AccessType) Write() bool   { return a&Write != 0 }
func (a AccessType) Execute() bool { return a&Execute != 0 }

// Valid is true if a grants something and has no bits outside AnyAccess.
func (a AccessType) Valid() bool {
	return a != NoAccess && a&^AnyAccess == 0
}

// SupersetOf is true if a grants everything x grants.
func (a AccessType) SupersetOf(x AccessType) bool {
	return a&x == x
}

func (a AccessType) String() string {
	b := []byte("---")
	if a.Read() {
		b[0] = 'r'
	}
	if a.Write() {
		b[1] = 'w'
	}
	if a.Execute() {
		b[2] = 'x'
	}
	return string(b)
}
