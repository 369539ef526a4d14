package syscalls

import (
	"context"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/kernel"
)

type Invoker struct {
	Kernel *kernel.Kernel
}

// InvokeSyscall runs the handler for args.Index on behalf of the task in ctx.
// Numbers without a handler return -1 and are not counted.
func (i *Invoker) InvokeSyscall(ctx context.Context, args SysArgs) int64 {
	if args.Index < 0 || args.Index >= len(Syscalls) {
		i.Kernel.L.Debug("syscall number out of range", "index", args.Index)
		return -1
	}

	f := Syscalls[args.Index]
	if f == nil {
		i.Kernel.L.Debug("unimplemented syscall", "index", args.Index)
		return -1
	}

	p, ok := kernel.GetTask(ctx)
	if !ok {
		i.Kernel.L.Error("syscall outside of a task", "index", args.Index)
		return -1
	}

	p.IncrementSyscall(args.Index)

	l := i.Kernel.L.With("pid", p.Pid, "syscall", abi.SyscallName(args.Index))

	return f(ctx, l, p, args)
}
