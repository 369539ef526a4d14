package loader

import (
	"context"
	"fmt"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/boundary"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/memory"
	hclog "github.com/hashicorp/go-hclog"
)

// FaultExitCode is the exit code of a task killed by a memory fault.
const FaultExitCode = -2

// Program is a parsed script. It is immutable and may back any number of
// tasks.
type Program struct {
	Ops []Op
}

// Entry returns a task entry that runs the program through tr. Results of
// each operation are logged to l.
func (p *Program) Entry(tr *boundary.Trap, l hclog.Logger) kernel.Entry {
	return func(ctx context.Context) {
		task, ok := kernel.GetTask(ctx)
		if !ok {
			panic("program entry run outside a task")
		}

		l := l.With("pid", task.Pid, "task", task.Name)

		for _, op := range p.Ops {
			ret, err := p.step(ctx, tr, task, l, op)
			if err != nil {
				l.Warn("memory fault, killing task", "line", op.Line, "op", op.Kind, "error", err)
				task.Exit(FaultExitCode)
			}

			l.Debug("op", "line", op.Line, "op", op.Kind, "ret", ret)
		}
	}
}

func (p *Program) step(ctx context.Context, tr *boundary.Trap, task *kernel.Task, l hclog.Logger, op Op) (int64, error) {
	switch op.Kind {
	case OpMmap:
		return tr.Mmap(ctx, op.Addr, op.Len, op.Perms), nil
	case OpMunmap:
		return tr.Munmap(ctx, op.Addr, op.Len), nil
	case OpSbrk:
		ret := tr.Sbrk(ctx, op.Delta)
		if ret != -1 {
			l.Info("sbrk", "delta", op.Delta, "old", memory.Addr(ret))
		}
		return ret, nil
	case OpGetTime:
		ret := tr.GetTime(ctx, op.Addr)
		if ret == 0 {
			var tv abi.TimeVal
			if err := task.CopyIn(op.Addr, &tv); err != nil {
				return ret, err
			}
			l.Info("get_time", "sec", tv.Sec, "usec", tv.Usec)
		}
		return ret, nil
	case OpTaskInfo:
		ret := tr.TaskInfo(ctx, op.Addr)
		if ret == 0 {
			var info abi.TaskInfo
			if err := task.CopyIn(op.Addr, &info); err != nil {
				return ret, err
			}
			l.Info("task_info", "status", info.Status, "time", info.Time, "syscalls", countsOf(info))
		}
		return ret, nil
	case OpYield:
		return tr.Yield(ctx), nil
	case OpExit:
		return tr.Exit(ctx, op.Code), nil
	case OpWrite:
		return tr.Write(ctx, op.FD, op.Addr, op.Len), nil
	case OpPoke:
		return 0, tr.Poke(ctx, op.Addr, op.Text)
	case OpPeek:
		b, err := tr.Peek(ctx, op.Addr, int(op.Len))
		if err != nil {
			return 0, err
		}
		l.Info("peek", "addr", op.Addr, "data", fmt.Sprintf("%q", b))
		return int64(len(b)), nil
	case OpSleep:
		if op.Dur <= 0 {
			return 0, nil
		}

		timer := task.Kernel().Timer
		until := timer.Micros() + uint64(op.Dur.Microseconds())
		for timer.Micros() < until {
			tr.Yield(ctx)
		}
		return 0, nil
	default:
		panic(fmt.Sprintf("unhandled op %s", op.Kind))
	}
}

// countsOf lists the non-zero syscall counters by name.
func countsOf(info abi.TaskInfo) map[string]uint32 {
	out := make(map[string]uint32)

	for n, c := range info.SyscallTimes {
		if c != 0 {
			out[abi.SyscallName(n)] = c
		}
	}

	return out
}
