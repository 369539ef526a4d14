package memory

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// FrameNumber identifies one physical page frame.
type FrameNumber uint64

// FrameAllocator hands out page frames from an arena of host memory. Frames
// are handed out bump-style until the arena is exhausted; freed frames are
// recycled first.
type FrameAllocator struct {
	mu sync.Mutex

	arena    []byte
	current  FrameNumber
	end      FrameNumber
	recycled []FrameNumber
	free     map[FrameNumber]struct{}
}

// NewFrameAllocator reserves frames*PageSize bytes of anonymous host memory.
func NewFrameAllocator(frames int) (*FrameAllocator, error) {
	if frames <= 0 {
		return nil, errors.Errorf("invalid frame count %d", frames)
	}

	arena, err := unix.Mmap(-1, 0, frames*PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "reserving physical memory")
	}

	return &FrameAllocator{
		arena: arena,
		end:   FrameNumber(frames),
		free:  make(map[FrameNumber]struct{}),
	}, nil
}

// Alloc returns a zero-filled frame.
func (fa *FrameAllocator) Alloc() (FrameNumber, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	var fn FrameNumber

	switch {
	case len(fa.recycled) > 0:
		fn = fa.recycled[len(fa.recycled)-1]
		fa.recycled = fa.recycled[:len(fa.recycled)-1]
		delete(fa.free, fn)
	case fa.current < fa.end:
		fn = fa.current
		fa.current++
	default:
		return 0, ErrNoMemory
	}

	clear(fa.page(fn))

	return fn, nil
}

// Free returns fn to the allocator. Freeing a frame that is not allocated is
// a kernel bug.
func (fa *FrameAllocator) Free(fn FrameNumber) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fn >= fa.current {
		panic(fmt.Sprintf("frame %d has not been allocated", fn))
	}

	if _, ok := fa.free[fn]; ok {
		panic(fmt.Sprintf("frame %d freed twice", fn))
	}

	fa.free[fn] = struct{}{}
	fa.recycled = append(fa.recycled, fn)
}

// Bytes returns the contents of frame fn.
func (fa *FrameAllocator) Bytes(fn FrameNumber) []byte {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fn >= fa.current {
		panic(fmt.Sprintf("frame %d has not been allocated", fn))
	}

	return fa.page(fn)
}

func (fa *FrameAllocator) page(fn FrameNumber) []byte {
	off := int(fn) * PageSize
	return fa.arena[off : off+PageSize : off+PageSize]
}

// Available returns the number of frames that can still be allocated.
func (fa *FrameAllocator) Available() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return int(fa.end-fa.current) + len(fa.recycled)
}

// Close releases the arena. No frame may be used afterwards.
func (fa *FrameAllocator) Close() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.arena == nil {
		return nil
	}

	err := unix.Munmap(fa.arena)
	fa.arena = nil
	fa.current, fa.end = 0, 0
	fa.recycled = nil

	return err
}
