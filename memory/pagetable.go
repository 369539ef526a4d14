package memory

import (
	"fmt"
	"sync"
)

// Token identifies a page table the way a satp register value does: the
// paging mode in the top bits and the root frame below it. It is only ever
// resolved by an MMU.
type Token uint64

const sv39Mode = 8

func makeToken(root FrameNumber) Token {
	return Token(sv39Mode<<60 | uint64(root))
}

func (t Token) root() FrameNumber {
	return FrameNumber(uint64(t) & (1<<44 - 1))
}

func (t Token) String() string {
	return fmt.Sprintf("%#x", uint64(t))
}

// PTE is a leaf page table entry.
type PTE struct {
	Frame FrameNumber
	Perms AccessType
	User  bool
}

// PageTable maps virtual page numbers to leaf entries for one address space.
type PageTable struct {
	token   Token
	entries map[uint64]PTE
}

func (pt *PageTable) Token() Token {
	return pt.token
}

// MMU owns physical memory and every live page table.
type MMU struct {
	Frames *FrameAllocator

	mu     sync.RWMutex
	tables map[Token]*PageTable
}

func NewMMU(frames *FrameAllocator) *MMU {
	return &MMU{
		Frames: frames,
		tables: make(map[Token]*PageTable),
	}
}

// NewPageTable allocates a root frame and registers an empty table for it.
func (m *MMU) NewPageTable() (*PageTable, error) {
	root, err := m.Frames.Alloc()
	if err != nil {
		return nil, err
	}

	pt := &PageTable{
		token:   makeToken(root),
		entries: make(map[uint64]PTE),
	}

	m.mu.Lock()
	m.tables[pt.token] = pt
	m.mu.Unlock()

	return pt, nil
}

// ReleasePageTable forgets tok and frees its root frame. Leaf frames are the
// owner's to free.
func (m *MMU) ReleasePageTable(tok Token) {
	m.mu.Lock()
	_, ok := m.tables[tok]
	delete(m.tables, tok)
	m.mu.Unlock()

	if !ok {
		panic(fmt.Sprintf("release of unknown page table %v", tok))
	}

	m.Frames.Free(tok.root())
}

// Translate looks up the entry for virtual page vpn in the table named by tok.
func (m *MMU) Translate(tok Token, vpn uint64) (PTE, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pt, ok := m.tables[tok]
	if !ok {
		return PTE{}, false
	}

	pte, ok := pt.entries[vpn]
	return pte, ok
}

// SetMapping installs pte for vpn. Remapping a present page is a kernel bug.
func (m *MMU) SetMapping(tok Token, vpn uint64, pte PTE) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt := m.mustTable(tok)

	if _, ok := pt.entries[vpn]; ok {
		panic(fmt.Sprintf("vpn %#x is mapped before mapping", vpn))
	}

	pt.entries[vpn] = pte
}

// ClearMapping removes the entry for vpn and returns it.
func (m *MMU) ClearMapping(tok Token, vpn uint64) (PTE, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt := m.mustTable(tok)

	pte, ok := pt.entries[vpn]
	if ok {
		delete(pt.entries, vpn)
	}

	return pte, ok
}

// MappedPages returns the number of leaf entries in the table named by tok.
func (m *MMU) MappedPages(tok Token) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.mustTable(tok).entries)
}

func (m *MMU) mustTable(tok Token) *PageTable {
	pt, ok := m.tables[tok]
	if !ok {
		panic(fmt.Sprintf("unknown page table %v", tok))
	}
	return pt
}
