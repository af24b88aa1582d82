package lifecycle

import (
	"context"
	"sync"
	"time"

	kwerrors "github.com/vtlabs/keywarden/internal/errors"
	"github.com/vtlabs/keywarden/internal/keys"
)

// guard serializes mutating operations per service. Each service owns a
// one-slot semaphore; an acquire that cannot get the slot within the
// bounded wait surfaces Busy instead of queueing forever. Exclusivity
// holds within a single process, which matches the single-instance
// deployment model.
type guard struct {
	mu      sync.Mutex
	slots   map[keys.Service]chan struct{}
	timeout time.Duration
}

func newGuard(timeout time.Duration) *guard {
	return &guard{
		slots:   make(map[keys.Service]chan struct{}),
		timeout: timeout,
	}
}

func (g *guard) slot(svc keys.Service) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	slot, ok := g.slots[svc]
	if !ok {
		slot = make(chan struct{}, 1)
		g.slots[svc] = slot
	}
	return slot
}

// acquire takes the service's slot, waiting at most the configured
// timeout. The returned release must be called exactly once.
func (g *guard) acquire(ctx context.Context, svc keys.Service) (release func(), err error) {
	slot := g.slot(svc)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-timer.C:
		return nil, kwerrors.BusyError{Service: string(svc), Timeout: g.timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
