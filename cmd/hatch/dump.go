package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/loader"
)

func dumpTasks(w io.Writer, tasks []*kernel.Task) {
	fmt.Fprintf(w, "\n[tasks]\n")

	tr := tabwriter.NewWriter(w, 4, 8, 1, ' ', 0)
	fmt.Fprintf(tr, "pid\tname\tstatus\texit\tsyscalls\n")

	for _, t := range tasks {
		var calls []string

		for n := 0; n < abi.MaxSyscallNum; n++ {
			if c := t.SyscallCount(n); c != 0 {
				calls = append(calls, fmt.Sprintf("%s=%d", abi.SyscallName(n), c))
			}
		}

		exit := "-"
		if t.Status() == abi.Exited {
			exit = fmt.Sprint(t.ExitCode())
		}

		fmt.Fprintf(tr, "%d\t%s\t%s\t%s\t%s\n", t.Pid, t.Name, t.Status(), exit, strings.Join(calls, " "))
	}

	tr.Flush()
}

func listProgram(w io.Writer, path string, p *loader.Program) {
	fmt.Fprintf(w, "\n[%s]\n", path)

	tr := tabwriter.NewWriter(w, 4, 8, 1, ' ', 0)

	for _, op := range p.Ops {
		fmt.Fprintf(tr, "%d\t%s\t%s\n", op.Line, op.Kind, describe(op))
	}

	tr.Flush()
}

func describe(op loader.Op) string {
	switch op.Kind {
	case loader.OpMmap:
		return fmt.Sprintf("addr=%v len=%#x perms=%v", op.Addr, op.Len, op.Perms)
	case loader.OpMunmap, loader.OpPeek:
		return fmt.Sprintf("addr=%v len=%#x", op.Addr, op.Len)
	case loader.OpSbrk:
		return fmt.Sprintf("delta=%d", op.Delta)
	case loader.OpGetTime, loader.OpTaskInfo:
		return fmt.Sprintf("addr=%v", op.Addr)
	case loader.OpExit:
		return fmt.Sprintf("code=%d", op.Code)
	case loader.OpWrite:
		return fmt.Sprintf("fd=%d addr=%v len=%#x", op.FD, op.Addr, op.Len)
	case loader.OpPoke:
		return fmt.Sprintf("addr=%v text=%q", op.Addr, op.Text)
	case loader.OpSleep:
		return fmt.Sprintf("dur=%s", op.Dur)
	default:
		return ""
	}
}
