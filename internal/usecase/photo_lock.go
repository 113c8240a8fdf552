package usecase

import (
	"context"
	"sync"

	"photovault/internal/domain"
)

// lockTable hands out per-photo locks: operations on the same photo ID run
// one at a time while distinct IDs proceed in parallel. Each slot is a
// one-token channel, so acquisition races directly against context
// cancellation in a single select, and a cancelled waiter leaves nothing
// behind to clean up. Slots are reference-counted and removed once the last
// holder or waiter checks out, keeping the table proportional to in-flight
// work rather than to library size.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	token   chan struct{}
	waiters int
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]*lockSlot)}
}

// Acquire blocks until the photo's lock is held or ctx expires. On success
// the returned release function must be called exactly once.
func (t *lockTable) Acquire(ctx context.Context, photoID string) (release func(), err error) {
	slot := t.checkIn(photoID)

	select {
	case slot.token <- struct{}{}:
		return func() {
			<-slot.token
			t.checkOut(photoID, slot)
		}, nil
	case <-ctx.Done():
		t.checkOut(photoID, slot)
		return nil, domain.WrapOp("acquire photo lock", ctx.Err())
	}
}

func (t *lockTable) checkIn(photoID string) *lockSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := t.slots[photoID]
	if slot == nil {
		slot = &lockSlot{token: make(chan struct{}, 1)}
		t.slots[photoID] = slot
	}
	slot.waiters++
	return slot
}

func (t *lockTable) checkOut(photoID string, slot *lockSlot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot.waiters--
	if slot.waiters == 0 {
		delete(t.slots, photoID)
	}
}

// inFlight reports how many photo IDs currently have a holder or waiters.
func (t *lockTable) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
