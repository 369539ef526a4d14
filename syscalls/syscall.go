// Package syscalls implements the kernel side of every system call. Handlers
// live in a table indexed by syscall number and are run by an Invoker on the
// goroutine of the calling task.
package syscalls

import (
	"context"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

type SysArgs struct {
	Index int
	Args  SyscallRequest
}

// SyscallRequest holds the argument registers of a trap, one machine word
// each.
type SyscallRequest struct {
	R0, R1, R2, R3, R4, R5 uint64
}

type Handler func(context.Context, hclog.Logger, *kernel.Task, SysArgs) int64

var Syscalls [abi.MaxSyscallNum]Handler
