package orders

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const DefaultCommitCooldown = 750 * time.Millisecond

// Guard allows at most one checkout in flight per terminal. It lives in
// process memory and does not coordinate between processes; cross-terminal
// races are settled by the stock ledger.
type Guard struct {
	cooldown time.Duration

	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
}

func NewGuard(cooldown time.Duration) *Guard {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Guard{
		cooldown: cooldown,
		slots:    make(map[string]*semaphore.Weighted),
	}
}

func (g *Guard) slot(terminalID string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.slots[terminalID]
	if !ok {
		s = semaphore.NewWeighted(1)
		g.slots[terminalID] = s
	}
	return s
}

// Lease is a held checkout slot.
type Lease struct {
	slot     *semaphore.Weighted
	cooldown time.Duration
	once     sync.Once
}

// Release frees the slot once the cooldown has elapsed. Only the first call
// to Release or Abort has an effect.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.cooldown == 0 {
			l.slot.Release(1)
			return
		}
		time.AfterFunc(l.cooldown, func() { l.slot.Release(1) })
	})
}

// Abort frees the slot at once. Used when the checkout wrote nothing.
func (l *Lease) Abort() {
	l.once.Do(func() { l.slot.Release(1) })
}

// TryAcquire never waits.
func (g *Guard) TryAcquire(terminalID string) (*Lease, bool) {
	s := g.slot(terminalID)
	if !s.TryAcquire(1) {
		return nil, false
	}
	return &Lease{slot: s, cooldown: g.cooldown}, true
}
