package syscalls

import (
	"context"
	"math"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/memory"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	fdStdout = 1
	fdStderr = 2
)

func sysWrite(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) int64 {
	var (
		fd  = args.Args.R0
		ptr = memory.Addr(args.Args.R1)
		sz  = args.Args.R2
	)

	if fd != fdStdout && fd != fdStderr {
		l.Debug("write to unsupported fd", "fd", fd)
		return -1
	}

	if sz > math.MaxInt32 {
		l.Debug("write too large", "size", sz)
		return -1
	}

	data, err := task.ReadBytes(ptr, int(sz))
	if err != nil {
		l.Debug("error reading data from userspace", "error", err, "kind", errors.Cause(err), "ptr", ptr)
		return -1
	}

	n, err := task.Kernel().Console.Write(data)
	if err != nil {
		l.Error("error writing to console", "error", err)
		return -1
	}

	return int64(n)
}

func init() {
	Syscalls[abi.SysWrite] = sysWrite
}
