package memory

import (
	"bytes"
	"encoding/binary"

	"github.com/evanphx/hatch/abi"
	"github.com/pkg/errors"
)

// Translator moves bytes between the kernel and the memory of an address
// space. Every call walks the page table of the space once per page touched;
// nothing is cached between calls, and a user address is never treated as a
// kernel pointer.
type Translator struct {
	MMU *MMU
}

// maxPrealloc caps the runs allocated before any page has been checked.
const maxPrealloc = 16

// run is a span of user memory that lies within one physical page.
type run struct {
	addr Addr
	mem  []byte
}

// resolve splits [addr, addr+n) into per-page runs and checks that every page
// is mapped and allows at. Nothing is copied, so a failure here leaves
// memory untouched.
func (t Translator) resolve(tok Token, addr Addr, n int, at AccessType) ([]run, error) {
	if n < 0 {
		return nil, errors.Errorf("negative length %d", n)
	}

	if n == 0 {
		return nil, nil
	}

	if _, ok := addr.AddLength(uint64(n)); !ok {
		return nil, errors.Wrapf(ErrUnmapped, "range at %v, length %#x wraps", addr, n)
	}

	runs := make([]run, 0, min(1+(int(addr.PageOffset())+n)/PageSize, maxPrealloc))

	for left := n; left > 0; {
		pte, ok := t.MMU.Translate(tok, addr.Page())
		if !ok {
			return nil, errors.Wrapf(ErrUnmapped, "address %v", addr)
		}

		if !pte.Perms.SupersetOf(at) {
			return nil, errors.Wrapf(ErrPermissionDenied, "%s access at %v, page is %s", at, addr, pte.Perms)
		}

		off := int(addr.PageOffset())
		sz := PageSize - off
		if sz > left {
			sz = left
		}

		page := t.MMU.Frames.Bytes(pte.Frame)

		runs = append(runs, run{addr: addr, mem: page[off : off+sz]})

		addr += Addr(sz)
		left -= sz
	}

	return runs, nil
}

// CopyOut writes src to addr in the address space named by tok.
func (t Translator) CopyOut(tok Token, addr Addr, src []byte) error {
	runs, err := t.resolve(tok, addr, len(src), Write)
	if err != nil {
		return err
	}

	for _, r := range runs {
		src = src[copy(r.mem, src):]
	}

	return nil
}

// CopyIn reads n bytes at addr in the address space named by tok.
func (t Translator) CopyIn(tok Token, addr Addr, n int) ([]byte, error) {
	runs, err := t.resolve(tok, addr, n, NoAccess)
	if err != nil {
		return nil, err
	}

	dst := make([]byte, 0, n)
	for _, r := range runs {
		dst = append(dst, r.mem...)
	}

	return dst, nil
}

type writeAdapter struct {
	t    Translator
	tok  Token
	addr Addr
}

func (w *writeAdapter) Write(b []byte) (int, error) {
	if err := w.t.CopyOut(w.tok, w.addr, b); err != nil {
		return 0, err
	}

	w.addr += Addr(len(b))

	return len(b), nil
}

// CopyObjectOut encodes the fixed-size value val and writes it to addr.
func (t Translator) CopyObjectOut(tok Token, addr Addr, val interface{}) error {
	return binary.Write(&writeAdapter{t: t, tok: tok, addr: addr}, abi.ByteOrder, val)
}

// CopyObjectIn reads a fixed-size value at addr and decodes it into val,
// which must be a pointer.
func (t Translator) CopyObjectIn(tok Token, addr Addr, val interface{}) error {
	sz := binary.Size(val)
	if sz < 0 {
		return errors.Errorf("%T is not a fixed-size value", val)
	}

	buf, err := t.CopyIn(tok, addr, sz)
	if err != nil {
		return err
	}

	return binary.Read(bytes.NewReader(buf), abi.ByteOrder, val)
}
