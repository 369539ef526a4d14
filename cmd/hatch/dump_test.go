package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/evanphx/hatch/config"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/loader"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestDump(t *testing.T) {
	n := neko.Modern(t)

	n.It("lists each task with its syscall counts", func(t *testing.T) {
		cfg := config.Default()
		cfg.Frames = 32

		var console bytes.Buffer

		k, err := kernel.NewKernel(cfg, kernel.WithLogger(hclog.NewNullLogger()), kernel.WithConsole(&console))
		require.NoError(t, err)
		defer k.Close()

		_, err = k.Spawn(context.Background(), "counter", func(ctx context.Context) {
			task, _ := kernel.GetTask(ctx)
			task.IncrementSyscall(124)
			task.IncrementSyscall(124)
			task.Exit(3)
		})
		require.NoError(t, err)

		require.NoError(t, k.Run(context.Background()))

		var out bytes.Buffer
		dumpTasks(&out, k.Tasks())

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)

		assert.Equal(t, "[tasks]", lines[0])
		assert.Equal(t, []string{"pid", "name", "status", "exit", "syscalls"}, strings.Fields(lines[1]))
		assert.Equal(t, []string{"1", "counter", "exited", "3", "yield=2"}, strings.Fields(lines[2]))
	})

	n.It("describes parsed operations", func(t *testing.T) {
		ops, err := loader.Parse(strings.NewReader("mmap 0x1000 0x2000 rw\npoke 0x1000 \"a b\"\nexit 1\n"))
		require.NoError(t, err)

		var out bytes.Buffer
		listProgram(&out, "prog.hs", &loader.Program{Ops: ops})

		text := out.String()
		assert.Contains(t, text, "[prog.hs]")
		assert.Contains(t, text, "text=\"a b\"")
		assert.Contains(t, text, "code=1")
		assert.Contains(t, text, "len=0x2000")
	})

	n.Meow()
}
