package kernel

import (
	"context"
	"sort"
	"sync"

	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/memory"
)

type prockey struct{}

func GetTask(ctx context.Context) (*Task, bool) {
	if v := ctx.Value(prockey{}); v != nil {
		return v.(*Task), true
	}

	return nil, false
}

func SetTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, prockey{}, t)
}

// Task is one user program: its address space and the bookkeeping that
// task_info reports. Only the goroutine holding the CPU touches a task, so
// the fields need no lock.
type Task struct {
	Pid   int
	Name  string
	Space *memory.AddressSpace

	kernel *Kernel
	entry  Entry
	wake   chan bool

	status       abi.TaskStatus
	started      bool
	startMs      uint64
	syscallTimes [abi.MaxSyscallNum]uint32
	exitCode     int
}

func (t *Task) Kernel() *Kernel {
	return t.kernel
}

func (t *Task) Status() abi.TaskStatus {
	return t.status
}

// ExitCode is only meaningful once the task has exited. Tasks killed by
// the kernel report -1.
func (t *Task) ExitCode() int {
	return t.exitCode
}

// RecordDispatch notes that the task got the CPU. Only the first dispatch
// sets the start time.
func (t *Task) RecordDispatch(nowMs uint64) {
	if !t.started {
		t.started = true
		t.startMs = nowMs
	}
}

// IncrementSyscall counts an invocation of syscall n. Numbers outside the
// table are ignored and report false.
func (t *Task) IncrementSyscall(n int) bool {
	if n < 0 || n >= abi.MaxSyscallNum {
		return false
	}

	t.syscallTimes[n]++
	return true
}

func (t *Task) SyscallCount(n int) uint32 {
	if n < 0 || n >= abi.MaxSyscallNum {
		return 0
	}

	return t.syscallTimes[n]
}

// Snapshot builds the task_info view of the task. Elapsed time is measured
// from the first dispatch and is zero for a task that never ran.
func (t *Task) Snapshot(nowMs uint64) abi.TaskInfo {
	info := abi.TaskInfo{
		Status:       t.status,
		SyscallTimes: t.syscallTimes,
	}

	if t.started && nowMs > t.startMs {
		info.Time = nowMs - t.startMs
	}

	return info
}

func (t *Task) CopyOut(addr memory.Addr, val interface{}) error {
	return t.kernel.Translator().CopyObjectOut(t.Space.Token(), addr, val)
}

func (t *Task) CopyIn(addr memory.Addr, val interface{}) error {
	return t.kernel.Translator().CopyObjectIn(t.Space.Token(), addr, val)
}

func (t *Task) ReadBytes(addr memory.Addr, n int) ([]byte, error) {
	return t.kernel.Translator().CopyIn(t.Space.Token(), addr, n)
}

func (t *Task) WriteBytes(addr memory.Addr, b []byte) error {
	return t.kernel.Translator().CopyOut(t.Space.Token(), addr, b)
}

// Yield gives up the CPU until the scheduler dispatches the task again.
func (t *Task) Yield() {
	t.kernel.SuspendAndReschedule(t)
}

// Exit ends the task. It does not return.
func (t *Task) Exit(code int) {
	t.kernel.ExitAndReschedule(t, code)
}

func (t *Task) run(ctx context.Context) {
	if !<-t.wake {
		return
	}

	t.entry(ctx)

	t.Exit(0)
}

// TaskTable hands out pids, reusing the lowest free one.
type TaskTable struct {
	mu        sync.RWMutex
	highWater int
	tasks     map[int]*Task
}

func NewTaskTable() *TaskTable {
	return &TaskTable{
		tasks: make(map[int]*Task),
	}
}

func (tt *TaskTable) AssignPid(t *Task) int {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	for i := 1; i <= tt.highWater; i++ {
		if _, ok := tt.tasks[i]; !ok {
			t.Pid = i
			tt.tasks[i] = t
			return i
		}
	}

	tt.highWater++
	pid := tt.highWater
	tt.tasks[pid] = t
	t.Pid = pid

	return pid
}

func (tt *TaskTable) Remove(t *Task) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	delete(tt.tasks, t.Pid)
}

func (tt *TaskTable) Lookup(pid int) (*Task, bool) {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	t, ok := tt.tasks[pid]
	return t, ok
}

func (tt *TaskTable) All() []*Task {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	out := make([]*Task, 0, len(tt.tasks))
	for _, t := range tt.tasks {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Pid < out[j].Pid
	})

	return out
}
