package boundary

import (
	"context"

	"github.com/evanphx/hatch/kernel"
	"github.com/evanphx/hatch/memory"
	"github.com/pkg/errors"
)

var ErrNoTask = errors.New("no task in context")

// Poke stores b at addr the way a user-mode store would, faulting on pages
// that are unmapped or not writable.
func (tr *Trap) Poke(ctx context.Context, addr memory.Addr, b []byte) error {
	p, ok := kernel.GetTask(ctx)
	if !ok {
		return ErrNoTask
	}

	err := p.WriteBytes(addr, b)
	if err != nil {
		return errors.Wrapf(err, "store fault at %v", addr)
	}

	return nil
}

// Peek loads n bytes from addr the way a user-mode load would.
func (tr *Trap) Peek(ctx context.Context, addr memory.Addr, n int) ([]byte, error) {
	p, ok := kernel.GetTask(ctx)
	if !ok {
		return nil, ErrNoTask
	}

	b, err := p.ReadBytes(addr, n)
	if err != nil {
		return nil, errors.Wrapf(err, "load fault at %v", addr)
	}

	return b, nil
}
