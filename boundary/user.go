package boundary

import (
	"context"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/memory"
)

func (tr *Trap) Write(ctx context.Context, fd int, buf memory.Addr, n uint64) int64 {
	return tr.Syscall3(ctx, abi.SysWrite, uint64(fd), uint64(buf), n)
}

// Exit does not return when ctx carries a task.
func (tr *Trap) Exit(ctx context.Context, code int) int64 {
	return tr.Syscall1(ctx, abi.SysExit, uint64(int64(code)))
}

func (tr *Trap) Yield(ctx context.Context) int64 {
	return tr.Syscall0(ctx, abi.SysYield)
}

func (tr *Trap) GetTime(ctx context.Context, tv memory.Addr) int64 {
	return tr.Syscall2(ctx, abi.SysGetTime, uint64(tv), 0)
}

func (tr *Trap) TaskInfo(ctx context.Context, info memory.Addr) int64 {
	return tr.Syscall1(ctx, abi.SysTaskInfo, uint64(info))
}

func (tr *Trap) Mmap(ctx context.Context, start memory.Addr, length uint64, perms memory.AccessType) int64 {
	return tr.Syscall3(ctx, abi.SysMmap, uint64(start), length, uint64(perms))
}

func (tr *Trap) Munmap(ctx context.Context, start memory.Addr, length uint64) int64 {
	return tr.Syscall2(ctx, abi.SysMunmap, uint64(start), length)
}

func (tr *Trap) Sbrk(ctx context.Context, delta int64) int64 {
	return tr.Syscall1(ctx, abi.SysSbrk, uint64(delta))
}
