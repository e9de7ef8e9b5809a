package concurrency

import (
	"context"
	"errors"
	"sync"
)

var ErrBusy = errors.New("a transfer is already running")

// TransferGuard admits one task at a time. A second caller is turned away
// with ErrBusy instead of queueing behind the first.
type TransferGuard struct {
	mu     sync.Mutex
	isBusy bool
}

func NewTransferGuard() *TransferGuard {
	return &TransferGuard{}
}

func (g *TransferGuard) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.isBusy {
		return false
	}
	g.isBusy = true
	return true
}

func (g *TransferGuard) release() {
	g.mu.Lock()
	g.isBusy = false
	g.mu.Unlock()
}

// Busy reports whether a task currently holds the guard.
func (g *TransferGuard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isBusy
}

func (g *TransferGuard) Execute(task func() error) error {
	if !g.acquire() {
		return ErrBusy
	}
	defer g.release()
	return task()
}

// ExecuteWithContext is Execute for cancellable tasks. A context that is
// already done never acquires the guard.
func (g *TransferGuard) ExecuteWithContext(ctx context.Context, task func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !g.acquire() {
		return ErrBusy
	}
	defer g.release()
	return task(ctx)
}
