package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/evanphx/hatch/boundary"
	"github.com/evanphx/hatch/config"
	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/loader"
	clog "github.com/evanphx/hatch/log"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

var (
	fConfig   = pflag.StringP("config", "c", "", "TOML file to read settings from")
	fLogLevel = pflag.StringP("log-level", "l", "", "log level: trace, debug, info, warn or error")
	fFrames   = pflag.Int("frames", 0, "number of physical frames to reserve")
	fDump     = pflag.Bool("dump", false, "print the task table when all tasks are done")
	fList     = pflag.Bool("list", false, "print the parsed scripts instead of running them")
)

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		fmt.Printf("pprof: profiling started\n")
	}

	pflag.Parse()

	err := run(pflag.Args())

	if cpuprofile != "" {
		pprof.StopCPUProfile()
		fmt.Printf("pprof: profiling finished\n")
	}

	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()

	if *fConfig != "" {
		var err error

		cfg, err = config.Load(*fConfig)
		if err != nil {
			return cfg, err
		}
	}

	if *fLogLevel != "" {
		cfg.LogLevel = *fLogLevel
	}

	if *fFrames != 0 {
		cfg.Frames = *fFrames
	}

	return cfg, cfg.Validate()
}

func run(scripts []string) error {
	if len(scripts) == 0 {
		return errors.New("usage: hatch [flags] script...")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := clog.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	cache, err := loader.NewLoaderCache(cfg.CacheSize)
	if err != nil {
		return err
	}

	ld := loader.NewLoader(cache)

	programs := make([]*loader.Program, len(scripts))

	for i, path := range scripts {
		programs[i], err = ld.LoadFile(path)
		if err != nil {
			return err
		}
	}

	if *fList {
		for i, path := range scripts {
			listProgram(os.Stdout, path, programs[i])
		}

		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	k, err := kernel.NewKernel(cfg)
	if err != nil {
		return err
	}

	defer k.Close()

	tr := boundary.NewTrap(k)

	for i, path := range scripts {
		_, err := k.Spawn(ctx, filepath.Base(path), programs[i].Entry(tr, clog.L))
		if err != nil {
			return err
		}
	}

	err = k.Run(ctx)

	if *fDump {
		dumpTasks(os.Stdout, k.Tasks())

		if clog.L.IsDebug() {
			spew.Fdump(os.Stderr, cfg)
		}
	}

	return err
}
