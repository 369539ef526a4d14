package syscalls

import (
	"context"
	"testing"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestMmap(t *testing.T) {
	n := neko.Modern(t)

	n.It("rejects bad arguments", func(t *testing.T) {
		h := newHarness(t)

		rw := uint64(memory.ReadWrite)

		cases := []struct {
			name               string
			start, length, prt uint64
		}{
			{"misaligned start", uint64(scratch) + 1, memory.PageSize, rw},
			{"no permissions", uint64(scratch), memory.PageSize, 0},
			{"unknown permission bits", uint64(scratch), memory.PageSize, 8 | rw},
			{"beyond the ceiling", 0x87fff000, 2 * memory.PageSize, rw},
			{"overflowing", 0xfffffffffffff000, 2 * memory.PageSize, rw},
		}

		var (
			rets   = make([]int64, len(cases))
			mapped []memory.Region
		)

		h.run(t, func(ctx context.Context, task *kernel.Task) {
			for i, c := range cases {
				rets[i] = h.call(ctx, abi.SysMmap, c.start, c.length, c.prt)
			}

			mapped = regionsOfKind(task, memory.Anonymous)
		})

		for i, c := range cases {
			assert.Equal(t, int64(-1), rets[i], c.name)
		}

		assert.Empty(t, mapped)
	})

	n.It("maps zeroed pages with the requested permissions", func(t *testing.T) {
		h := newHarness(t)

		var (
			ret  int64
			data []byte
			reg  memory.Region
		)

		h.run(t, func(ctx context.Context, task *kernel.Task) {
			ret = h.call(ctx, abi.SysMmap, uint64(scratch), memory.PageSize+1, uint64(memory.Read|memory.Write))

			data, _ = task.ReadBytes(scratch, 2*memory.PageSize)
			reg, _ = task.Space.FindRegion(scratch)
		})

		require.Equal(t, int64(0), ret)
		assert.Equal(t, make([]byte, 2*memory.PageSize), data)
		assert.Equal(t, memory.AddrRange{Start: scratch, End: scratch + 2*memory.PageSize}, reg.AddrRange)
		assert.Equal(t, memory.ReadWrite, reg.Perms)
		assert.Equal(t, memory.Anonymous, reg.Kind)
	})

	n.It("maps right up to the ceiling", func(t *testing.T) {
		h := newHarness(t)

		var ret int64

		h.run(t, func(ctx context.Context, task *kernel.Task) {
			ret = h.call(ctx, abi.SysMmap, 0x87fff000, memory.PageSize, uint64(memory.Read))
		})

		assert.Equal(t, int64(0), ret)
	})

	n.It("refuses to map over an existing region", func(t *testing.T) {
		h := newHarness(t)

		var first, second int64

		h.run(t, func(ctx context.Context, task *kernel.Task) {
			first = h.call(ctx, abi.SysMmap, uint64(scratch), 2*memory.PageSize, uint64(memory.ReadWrite))
			second = h.call(ctx, abi.SysMmap, uint64(scratch)+memory.PageSize, memory.PageSize, uint64(memory.ReadWrite))
		})

		assert.Equal(t, int64(0), first)
		assert.Equal(t, int64(-1), second)
	})

	n.Meow()
}

func TestMunmap(t *testing.T) {
	n := neko.Modern(t)

	n.It("unmaps a mapped range", func(t *testing.T) {
		h := newHarness(t)

		var (
			ret  int64
			err  error
			left []memory.Region
		)

		h.run(t, func(ctx context.Context, task *kernel.Task) {
			h.call(ctx, abi.SysMmap, uint64(scratch), 2*memory.PageSize, uint64(memory.ReadWrite))
			ret = h.call(ctx, abi.SysMunmap, uint64(scratch), memory.PageSize)
			_, err = task.ReadBytes(scratch, 1)
			left = regionsOfKind(task, memory.Anonymous)
		})

		require.Equal(t, int64(0), ret)
		assert.Error(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, scratch+memory.PageSize, left[0].Start)
	})

	n.It("rejects misaligned and unmapped ranges", func(t *testing.T) {
		h := newHarness(t)

		var misaligned, unmapped, stack int64

		h.run(t, func(ctx context.Context, task *kernel.Task) {
			misaligned = h.call(ctx, abi.SysMunmap, uint64(scratch)+8, memory.PageSize)
			unmapped = h.call(ctx, abi.SysMunmap, uint64(scratch), memory.PageSize)

			reg, _ := task.Space.FindRegion(task.Space.HeapBottom() - 1)
			stack = h.call(ctx, abi.SysMunmap, uint64(reg.Start), reg.Length())
		})

		assert.Equal(t, int64(-1), misaligned)
		assert.Equal(t, int64(-1), unmapped)
		assert.Equal(t, int64(-1), stack)
	})

	n.Meow()
}

func TestSbrk(t *testing.T) {
	n := neko.Modern(t)

	n.It("returns the break for a zero delta", func(t *testing.T) {
		h := newHarness(t)

		var ret int64

		task := h.run(t, func(ctx context.Context, task *kernel.Task) {
			ret = h.call(ctx, abi.SysSbrk, 0)
		})

		assert.Equal(t, int64(task.Space.HeapBottom()), ret)
	})

	n.It("grows and shrinks the heap", func(t *testing.T) {
		h := newHarness(t)

		var (
			bottom            memory.Addr
			grow, again, back int64
			err               error
		)

		h.run(t, func(ctx context.Context, task *kernel.Task) {
			bottom = task.Space.HeapBottom()

			grow = h.call(ctx, abi.SysSbrk, 100)
			err = task.WriteBytes(bottom+99, []byte{1})

			again = h.call(ctx, abi.SysSbrk, 0)
			back = h.call(ctx, abi.SysSbrk, uint64(0xffffffffffffff9c)) // -100
		})

		assert.Equal(t, int64(bottom), grow)
		assert.NoError(t, err)
		assert.Equal(t, int64(bottom+100), again)
		assert.Equal(t, int64(bottom+100), back)
	})

	n.It("fails on a large negative delta", func(t *testing.T) {
		h := newHarness(t)

		var (
			ret int64
			brk memory.Addr
		)

		task := h.run(t, func(ctx context.Context, task *kernel.Task) {
			ret = h.call(ctx, abi.SysSbrk, uint64(0xfffffffffff00000))
			brk = task.Space.Break()
		})

		assert.Equal(t, int64(-1), ret)
		assert.Equal(t, task.Space.HeapBottom(), brk)
	})

	n.Meow()
}

func regionsOfKind(task *kernel.Task, kind memory.RegionKind) []memory.Region {
	var out []memory.Region

	for _, r := range task.Space.Regions() {
		if r.Kind == kind {
			out = append(out, r)
		}
	}

	return out
}
