package syscalls

import (
	"context"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/memory"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const validPerms = uint64(memory.AnyAccess)

func sysMmap(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int64 {
	var (
		start  = memory.Addr(args.Args.R0)
		length = args.Args.R1
		port   = args.Args.R2
	)

	if !start.IsPageAligned() {
		l.Debug("mmap of misaligned address", "start", start)
		return -1
	}

	if port&^validPerms != 0 || port&validPerms == 0 {
		l.Debug("mmap with invalid permissions", "port", port)
		return -1
	}

	end, ok := start.AddLength(length)
	if !ok || end > task.Space.Ceiling() {
		l.Debug("mmap beyond the memory ceiling", "start", start, "length", length, "ceiling", task.Space.Ceiling())
		return -1
	}

	err := task.Space.Map(start, length, memory.AccessType(port))
	if err != nil {
		l.Debug("mmap failed", "error", err, "kind", errors.Cause(err))
		return -1
	}

	l.Trace("mapped", "start", start, "length", length, "perms", memory.AccessType(port))

	return 0
}

func sysMunmap(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int64 {
	var (
		start  = memory.Addr(args.Args.R0)
		length = args.Args.R1
	)

	if !start.IsPageAligned() {
		l.Debug("munmap of misaligned address", "start", start)
		return -1
	}

	err := task.Space.Unmap(start, length)
	if err != nil {
		l.Debug("munmap failed", "error", err, "kind", errors.Cause(err))
		return -1
	}

	return 0
}

// sysSbrk moves the program break by a signed delta and returns the old
// break.
func sysSbrk(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int64 {
	var (
		delta = int64(args.Args.R0)
	)

	old, ok := task.Space.AdjustBreak(delta)
	if !ok {
		l.Debug("sbrk refused", "delta", delta, "brk", task.Space.Break())
		return -1
	}

	return int64(old)
}

func init() {
	Syscalls[abi.SysMmap] = sysMmap
	Syscalls[abi.SysMunmap] = sysMunmap
	Syscalls[abi.SysSbrk] = sysSbrk
}
