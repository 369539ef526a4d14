package syscalls

import (
	"context"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/memory"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

func sysExit(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int64 {
	code := int(int32(args.Args.R0))

	l.Trace("task exiting", "code", code)

	task.Exit(code)

	panic("exit returned")
}

func sysYield(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int64 {
	task.Yield()
	return 0
}

func sysTaskInfo(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int64 {
	var (
		ptr = args.Args.R0
	)

	info := task.Snapshot(task.Kernel().Timer.Millis())

	err := task.CopyOut(memory.Addr(ptr), &info)
	if err != nil {
		l.Debug("error copying out task info", "error", err, "kind", errors.Cause(err), "ptr", memory.Addr(ptr))
		return -1
	}

	return 0
}

func init() {
	Syscalls[abi.SysExit] = sysExit
	Syscalls[abi.SysYield] = sysYield
	Syscalls[abi.SysTaskInfo] = sysTaskInfo
}
