// Package abi describes the user-visible side of the kernel: syscall numbers
// and the layout of the structures syscalls copy into user memory.
package abi

// Syscall numbers. These follow the RISC-V Linux numbering, with task_info
// placed outside the Linux range.
const (
	SysWrite    = 64
	SysExit     = 93
	SysYield    = 124
	SysGetTime  = 169
	SysSbrk     = 214
	SysMunmap   = 215
	SysMmap     = 222
	SysTaskInfo = 410
)

// MaxSyscallNum bounds the syscall table and the per-task counter table.
const MaxSyscallNum = 500

// SyscallNames maps a syscall number to its name, for logging.
var SyscallNames = map[int]string{
	SysWrite:    "write",
	SysExit:     "exit",
	SysYield:    "yield",
	SysGetTime:  "get_time",
	SysSbrk:     "sbrk",
	SysMunmap:   "munmap",
	SysMmap:     "mmap",
	SysTaskInfo: "task_info",
}

// SyscallName returns the name of syscall n, or "unknown".
func SyscallName(n int) string {
	if name, ok := SyscallNames[n]; ok {
		return name
	}

	return "unknown"
}
