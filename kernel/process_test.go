package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/evanphx/hatch/abi"
	"github.com/evanphx/hatch/config"
	"github.com/evanphx/hatch/memory"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func newTestKernel(t *testing.T) (*Kernel, *clock.Mock) {
	cfg := config.Default()
	cfg.Frames = 64

	mock := clock.NewMock()

	k, err := NewKernel(cfg, WithClock(mock), WithLogger(hclog.NewNullLogger()))
	require.NoError(t, err)

	t.Cleanup(func() {
		k.Close()
	})

	return k, mock
}

func TestTaskState(t *testing.T) {
	n := neko.Modern(t)

	n.It("reports a fresh task as ready with no elapsed time", func(t *testing.T) {
		k, _ := newTestKernel(t)

		task, err := k.Spawn(context.Background(), "fresh", func(ctx context.Context) {})
		require.NoError(t, err)

		info := task.Snapshot(1000)
		assert.Equal(t, abi.Ready, info.Status)
		assert.Equal(t, uint64(0), info.Time)
		assert.Equal(t, [abi.MaxSyscallNum]uint32{}, info.SyscallTimes)
	})

	n.It("keeps the first dispatch time", func(t *testing.T) {
		var task Task

		task.RecordDispatch(10)
		task.RecordDispatch(50)

		assert.Equal(t, uint64(90), task.Snapshot(100).Time)
	})

	n.It("never reports negative elapsed time", func(t *testing.T) {
		var task Task

		task.RecordDispatch(10)

		assert.Equal(t, uint64(0), task.Snapshot(5).Time)
	})

	n.It("counts syscalls by number", func(t *testing.T) {
		var task Task

		require.True(t, task.IncrementSyscall(abi.SysWrite))
		require.True(t, task.IncrementSyscall(abi.SysWrite))
		require.True(t, task.IncrementSyscall(abi.SysGetTime))

		info := task.Snapshot(0)
		assert.Equal(t, uint32(2), info.SyscallTimes[abi.SysWrite])
		assert.Equal(t, uint32(1), info.SyscallTimes[abi.SysGetTime])
		assert.Equal(t, uint32(0), info.SyscallTimes[abi.SysExit])
	})

	n.It("ignores syscall numbers outside the table", func(t *testing.T) {
		var task Task

		assert.False(t, task.IncrementSyscall(abi.MaxSyscallNum))
		assert.False(t, task.IncrementSyscall(-1))
		assert.Equal(t, uint32(0), task.SyscallCount(abi.MaxSyscallNum))
	})

	n.Meow()
}

func TestScheduler(t *testing.T) {
	n := neko.Modern(t)

	n.It("interleaves tasks that yield in FIFO order", func(t *testing.T) {
		k, _ := newTestKernel(t)

		var trace []string

		step := func(name string) Entry {
			return func(ctx context.Context) {
				task, ok := GetTask(ctx)
				require.True(t, ok)

				for i := 0; i < 3; i++ {
					trace = append(trace, name)
					task.Yield()
				}
			}
		}

		_, err := k.Spawn(context.Background(), "a", step("a"))
		require.NoError(t, err)

		_, err = k.Spawn(context.Background(), "b", step("b"))
		require.NoError(t, err)

		require.NoError(t, k.Run(context.Background()))

		assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, trace)
	})

	n.It("marks the running task as current", func(t *testing.T) {
		k, _ := newTestKernel(t)

		var (
			seen   *Task
			status abi.TaskStatus
		)

		task, err := k.Spawn(context.Background(), "cur", func(ctx context.Context) {
			seen = k.Current()
			status = seen.Status()
		})
		require.NoError(t, err)

		require.NoError(t, k.Run(context.Background()))

		assert.Equal(t, task, seen)
		assert.Equal(t, abi.Running, status)
		assert.Nil(t, k.Current())
	})

	n.It("exits with code zero when the entry returns", func(t *testing.T) {
		k, _ := newTestKernel(t)

		task, err := k.Spawn(context.Background(), "done", func(ctx context.Context) {})
		require.NoError(t, err)

		require.NoError(t, k.Run(context.Background()))

		assert.Equal(t, abi.Exited, task.Status())
		assert.Equal(t, 0, task.ExitCode())
	})

	n.It("does not return from exit", func(t *testing.T) {
		k, _ := newTestKernel(t)

		after := false

		task, err := k.Spawn(context.Background(), "exit", func(ctx context.Context) {
			task, _ := GetTask(ctx)
			task.Exit(7)
			after = true
		})
		require.NoError(t, err)

		require.NoError(t, k.Run(context.Background()))

		assert.False(t, after)
		assert.Equal(t, 7, task.ExitCode())
	})

	n.It("releases the address space of an exited task", func(t *testing.T) {
		k, _ := newTestKernel(t)

		free := k.MMU.Frames.Available()

		task, err := k.Spawn(context.Background(), "mem", func(ctx context.Context) {
			task, _ := GetTask(ctx)
			require.NoError(t, task.Space.Map(0x100000, 4*memory.PageSize, memory.ReadWrite))
		})
		require.NoError(t, err)

		require.Less(t, k.MMU.Frames.Available(), free)

		require.NoError(t, k.Run(context.Background()))

		assert.Equal(t, abi.Exited, task.Status())
		assert.Equal(t, free, k.MMU.Frames.Available())
	})

	n.It("measures elapsed time from the first dispatch", func(t *testing.T) {
		k, mock := newTestKernel(t)

		mock.Add(3 * time.Millisecond)

		var info abi.TaskInfo

		_, err := k.Spawn(context.Background(), "timed", func(ctx context.Context) {
			task, _ := GetTask(ctx)

			mock.Add(5 * time.Millisecond)
			task.Yield()
			mock.Add(2 * time.Millisecond)

			info = task.Snapshot(k.Timer.Millis())
		})
		require.NoError(t, err)

		require.NoError(t, k.Run(context.Background()))

		assert.Equal(t, abi.Running, info.Status)
		assert.Equal(t, uint64(7), info.Time)
	})

	n.It("kills waiting tasks when the context is done", func(t *testing.T) {
		k, _ := newTestKernel(t)

		ctx, cancel := context.WithCancel(context.Background())

		ran := false

		first, err := k.Spawn(ctx, "first", func(ctx context.Context) {
			cancel()
			task, _ := GetTask(ctx)
			task.Yield()
			ran = true
		})
		require.NoError(t, err)

		second, err := k.Spawn(ctx, "second", func(ctx context.Context) {
			ran = true
		})
		require.NoError(t, err)

		err = k.Run(ctx)
		require.Equal(t, context.Canceled, err)

		assert.False(t, ran)
		assert.Equal(t, abi.Exited, first.Status())
		assert.Equal(t, -1, first.ExitCode())
		assert.Equal(t, abi.Exited, second.Status())
	})

	n.It("reuses the pid of a reaped task", func(t *testing.T) {
		k, _ := newTestKernel(t)

		a, err := k.Spawn(context.Background(), "a", func(ctx context.Context) {})
		require.NoError(t, err)

		b, err := k.Spawn(context.Background(), "b", func(ctx context.Context) {})
		require.NoError(t, err)

		assert.Equal(t, 1, a.Pid)
		assert.Equal(t, 2, b.Pid)

		require.Error(t, k.Reap(a.Pid))

		require.NoError(t, k.Run(context.Background()))
		require.NoError(t, k.Reap(a.Pid))

		_, ok := k.Task(a.Pid)
		assert.False(t, ok)

		c, err := k.Spawn(context.Background(), "c", func(ctx context.Context) {})
		require.NoError(t, err)

		assert.Equal(t, 1, c.Pid)
		assert.Len(t, k.Tasks(), 2)
	})

	n.Meow()
}
