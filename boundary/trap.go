// Package boundary is where user programs enter the kernel. A Trap turns a
// syscall number and its argument words into a call on the syscall table,
// and offers typed wrappers for the calls a user program makes.
package boundary

import (
	"context"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/memory"
	"github.com/evanphx/hatch/syscalls"
	hclog "github.com/hashicorp/go-hclog"
)

type SyscallInvoker interface {
	InvokeSyscall(context.Context, syscalls.SysArgs) int64
}

type Trap struct {
	L       hclog.Logger
	Invoker SyscallInvoker
}

// NewTrap wires a trap to the syscall table of k.
func NewTrap(k *kernel.Kernel) *Trap {
	return &Trap{
		L:       k.L,
		Invoker: &syscalls.Invoker{Kernel: k},
	}
}

func (tr *Trap) invokeSyscall(ctx context.Context, args syscalls.SysArgs) int64 {
	return tr.Invoker.InvokeSyscall(ctx, args)
}

func (tr *Trap) Syscall0(ctx context.Context, idx int) int64 {
	p, ok := kernel.GetTask(ctx)
	if !ok {
		return -1
	}

	tr.L.Trace("syscall", "pid", p.Pid, "index", idx, "name", abi.SyscallName(idx))

	return tr.invokeSyscall(ctx, syscalls.SysArgs{Index: idx})
}

func (tr *Trap) Syscall1(ctx context.Context, idx int, a uint64) int64 {
	p, ok := kernel.GetTask(ctx)
	if !ok {
		return -1
	}

	tr.L.Trace("syscall", "pid", p.Pid, "index", idx, "name", abi.SyscallName(idx), "a", a)
	return tr.invokeSyscall(ctx, syscalls.SysArgs{Index: idx, Args: syscalls.SyscallRequest{R0: a}})
}

func (tr *Trap) Syscall2(ctx context.Context, idx int, a, b uint64) int64 {
	p, ok := kernel.GetTask(ctx)
	if !ok {
		return -1
	}

	tr.L.Trace("syscall", "pid", p.Pid, "index", idx, "name", abi.SyscallName(idx), "a", a, "b", b)
	return tr.invokeSyscall(ctx, syscalls.SysArgs{Index: idx, Args: syscalls.SyscallRequest{R0: a, R1: b}})
}

func (tr *Trap) Syscall3(ctx context.Context, idx int, a, b, c uint64) int64 {
	p, ok := kernel.GetTask(ctx)
	if !ok {
		return -1
	}

	tr.L.Trace("syscall", "pid", p.Pid, "index", idx, "name", abi.SyscallName(idx), "a", a, "b", b, "c", c)
	return tr.invokeSyscall(ctx, syscalls.SysArgs{Index: idx, Args: syscalls.SyscallRequest{R0: a, R1: b, R2: c}})
}

// Syscall reads all six argument words from a block in user memory at addr.
func (tr *Trap) Syscall(ctx context.Context, idx int, addr memory.Addr) int64 {
	var args syscalls.SysArgs

	args.Index = idx

	p, ok := kernel.GetTask(ctx)
	if !ok {
		return -1
	}

	err := p.CopyIn(addr, &args.Args)
	if err != nil {
		tr.L.Debug("error decoding syscall arguments", "error", err, "addr", addr)
		return -1
	}

	tr.L.Trace("syscall", "pid", p.Pid, "index", idx, "name", abi.SyscallName(idx), "req", args.Args)

	return tr.invokeSyscall(ctx, args)
}
