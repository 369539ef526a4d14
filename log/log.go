package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{
		Name:  "hatch",
		Level: hclog.Info,
	})

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// SetLevel changes the level of L. It does nothing when TRACE is set.
func SetLevel(level string) error {
	if os.Getenv("TRACE") != "" {
		return nil
	}

	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		return errors.Errorf("unknown log level %q", level)
	}

	L.SetLevel(lvl)

	return nil
}
