package abi

import (
	"encoding/binary"
	"fmt"
)

// ByteOrder is the byte order of every structure shared with user space.
var ByteOrder = binary.LittleEndian

// TaskStatus is the lifecycle state of a task.
type TaskStatus uint32

const (
	UnInit TaskStatus = iota
	Ready
	Running
	Exited
)

func (s TaskStatus) String() string {
	switch s {
	case UnInit:
		return "uninit"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// TimeVal is the result of get_time: two machine words, seconds then
// microseconds, with no padding.
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

// Micros returns tv as a count of microseconds.
func (tv TimeVal) Micros() uint64 {
	return tv.Sec*1_000_000 + tv.Usec
}

// TimeValFromMicros splits us into a TimeVal.
func TimeValFromMicros(us uint64) TimeVal {
	return TimeVal{
		Sec:  us / 1_000_000,
		Usec: us % 1_000_000,
	}
}

// TaskInfo is the result of task_info. It is laid out like the C struct
//
//	struct task_info {
//	    uint32_t status;
//	    uint32_t syscall_times[MAX_SYSCALL_NUM];
//	    uint64_t time;
//	};
//
// which puts 4 bytes of padding in front of Time.
type TaskInfo struct {
	Status       TaskStatus
	SyscallTimes [MaxSyscallNum]uint32
	_            uint32
	Time         uint64
}

var (
	TimeValSize  = binary.Size(TimeVal{})
	TaskInfoSize = binary.Size(TaskInfo{})
)
