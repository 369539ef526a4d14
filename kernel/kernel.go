// Package kernel holds the scheduler context and per-task state of the
// kernel. Each task runs its entry function on its own goroutine, but only
// one task holds the CPU at a time: the scheduler hands a task the CPU by
// waking it and waits until the task yields or exits.
package kernel

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/benbjohnson/clock"
	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/config"
	"github.com/evanphx/hatch/log"
	"github.com/evanphx/hatch/memory"
	"github.com/evanphx/hatch/timer"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Entry is the user program of a task. The context carries the task, see
// GetTask.
type Entry func(ctx context.Context)

type Kernel struct {
	L       hclog.Logger
	Config  config.Config
	Timer   *timer.Timer
	MMU     *memory.MMU
	Console io.Writer

	clk   clock.Clock
	tasks *TaskTable
	sched *Scheduler
}

type Option func(k *Kernel)

// WithClock makes the timer read clk instead of the host clock.
func WithClock(clk clock.Clock) Option {
	return func(k *Kernel) {
		k.clk = clk
	}
}

// WithConsole sends what tasks write to fd 1 and 2 to w.
func WithConsole(w io.Writer) Option {
	return func(k *Kernel) {
		k.Console = w
	}
}

func WithLogger(l hclog.Logger) Option {
	return func(k *Kernel) {
		k.L = l
	}
}

func NewKernel(cfg config.Config, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid kernel config")
	}

	k := &Kernel{
		L:       log.L,
		Config:  cfg,
		Console: os.Stdout,
		clk:     clock.New(),
		tasks:   NewTaskTable(),
		sched:   newScheduler(),
	}

	for _, opt := range opts {
		opt(k)
	}

	frames, err := memory.NewFrameAllocator(cfg.Frames)
	if err != nil {
		return nil, err
	}

	k.MMU = memory.NewMMU(frames)
	k.Timer = timer.New(k.clk, cfg.ClockFreq)

	k.L.Debug("kernel booted", "frames", cfg.Frames, "ceiling", memory.Addr(cfg.MemoryCeiling), "clock-freq", cfg.ClockFreq)

	return k, nil
}

// Translator returns the translator for user memory of every task.
func (k *Kernel) Translator() memory.Translator {
	return memory.Translator{MMU: k.MMU}
}

func (k *Kernel) layout() memory.Layout {
	return memory.Layout{
		ImageBase:  memory.Addr(k.Config.ImageBase),
		ImagePages: k.Config.ImagePages,
		StackPages: k.Config.StackPages,
		Ceiling:    memory.Addr(k.Config.MemoryCeiling),
	}
}

// Spawn creates a task running entry and queues it. The task does not run
// until Run dispatches it.
func (k *Kernel) Spawn(ctx context.Context, name string, entry Entry) (*Task, error) {
	space, err := memory.NewAddressSpace(k.MMU, k.layout())
	if err != nil {
		return nil, errors.Wrapf(err, "creating address space for %s", name)
	}

	t := &Task{
		Name:   name,
		Space:  space,
		kernel: k,
		entry:  entry,
		wake:   make(chan bool),
		status: abi.Ready,
	}

	k.tasks.AssignPid(t)

	k.L.Debug("task spawned", "pid", t.Pid, "name", name, "token", space.Token(), "brk", space.Break())

	go t.run(SetTask(ctx, t))

	k.sched.push(t)

	return t, nil
}

// Run dispatches ready tasks until none are left. Tasks are never preempted;
// ctx is checked between dispatches, and when it is done every task still
// waiting is killed.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			k.killAll()
			return err
		}

		t := k.sched.DispatchNext(k.Timer.Millis())
		if t == nil {
			return nil
		}

		k.L.Trace("task dispatched", "pid", t.Pid, "name", t.Name, "ready", k.sched.Ready())

		t.wake <- true

		ev := <-k.sched.events
		if ev.task != t {
			panic(fmt.Sprintf("scheduler event from pid %d while pid %d holds the cpu", ev.task.Pid, t.Pid))
		}

		switch ev.kind {
		case eventYield:
			t.status = abi.Ready
			k.sched.push(t)
		case eventExit:
			k.reap(t, ev.code)
		}

		k.sched.idle()
	}
}

// Current returns the task holding the CPU, or nil.
func (k *Kernel) Current() *Task {
	return k.sched.Current()
}

// ExitAndReschedule ends t, which must be the current task, and gives the
// CPU back to the scheduler. It does not return.
func (k *Kernel) ExitAndReschedule(t *Task, code int) {
	k.mustBeCurrent(t)

	k.sched.events <- event{task: t, kind: eventExit, code: code}

	runtime.Goexit()
}

// SuspendAndReschedule puts t, which must be the current task, at the back
// of the ready queue and returns once t is dispatched again.
func (k *Kernel) SuspendAndReschedule(t *Task) {
	k.mustBeCurrent(t)

	k.sched.events <- event{task: t, kind: eventYield}

	if !<-t.wake {
		runtime.Goexit()
	}
}

func (k *Kernel) mustBeCurrent(t *Task) {
	if cur := k.sched.Current(); cur != t {
		panic(fmt.Sprintf("pid %d is rescheduling without holding the cpu", t.Pid))
	}
}

func (k *Kernel) reap(t *Task, code int) {
	t.status = abi.Exited
	t.exitCode = code
	t.Space.Release()

	k.L.Debug("task exited", "pid", t.Pid, "name", t.Name, "code", code)
}

func (k *Kernel) killAll() {
	for _, t := range k.sched.drain() {
		t.wake <- false
		k.reap(t, -1)
	}
}

// Task returns the task with the given pid, including exited tasks that
// have not been reaped.
func (k *Kernel) Task(pid int) (*Task, bool) {
	return k.tasks.Lookup(pid)
}

// Tasks returns every known task ordered by pid.
func (k *Kernel) Tasks() []*Task {
	return k.tasks.All()
}

// Reap forgets an exited task so its pid can be reused.
func (k *Kernel) Reap(pid int) error {
	t, ok := k.tasks.Lookup(pid)
	if !ok {
		return errors.Errorf("no task with pid %d", pid)
	}

	if t.status != abi.Exited {
		return errors.Errorf("task %d is %s", pid, t.status)
	}

	k.tasks.Remove(t)

	return nil
}

// Close kills tasks that never finished and releases physical memory. It
// must not be called while Run is running.
func (k *Kernel) Close() error {
	k.killAll()
	return k.MMU.Frames.Close()
}
