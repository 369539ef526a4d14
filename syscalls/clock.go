package syscalls

import (
	"context"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/memory"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// sysGetTime fills a TimeVal with the time since boot. The timezone
// argument is ignored.
func sysGetTime(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int64 {
	var (
		ptr = memory.Addr(args.Args.R0)
	)

	tv := abi.TimeValFromMicros(task.Kernel().Timer.Micros())

	err := task.CopyOut(ptr, &tv)
	if err != nil {
		l.Debug("error copying out time", "error", err, "kind", errors.Cause(err), "ptr", ptr)
		return -1
	}

	return 0
}

func init() {
	Syscalls[abi.SysGetTime] = sysGetTime
}
