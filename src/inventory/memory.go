package inventory

import (
	"context"
	"sync"
	"time"

	"tbs/src/config"

	"github.com/google/uuid"
)

type memHold struct {
	ticketID uint
	qty      int
	deadline time.Time
}

// MemoryLedger holds counters in process. It backs tests and local runs
// where no database is wired up.
type MemoryLedger struct {
	HoldTTL time.Duration

	mu       sync.Mutex
	capacity map[uint]int
	sold     map[uint]int
	holds    map[uuid.UUID]memHold
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		HoldTTL:  config.HOLD_TTL_MINUTES * time.Minute,
		capacity: map[uint]int{},
		sold:     map[uint]int{},
		holds:    map[uuid.UUID]memHold{},
	}
}

func (l *MemoryLedger) SetCapacity(ticketID uint, capacity int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.capacity[ticketID] = capacity
}

func (l *MemoryLedger) Sold(ticketID uint) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sold[ticketID]
}

func (l *MemoryLedger) Reserve(ctx context.Context, ticketID uint, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrBadQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	capacity, ok := l.capacity[ticketID]
	if !ok {
		return nil, ErrUnknownTicket
	}
	if l.sold[ticketID]+qty > capacity {
		return nil, ErrOversold
	}
	l.sold[ticketID] += qty
	id := uuid.New()
	deadline := time.Now().Add(l.HoldTTL)
	l.holds[id] = memHold{ticketID: ticketID, qty: qty, deadline: deadline}
	return &Reservation{ID: id, TicketID: ticketID, Qty: qty, Deadline: deadline}, nil
}

func (l *MemoryLedger) Commit(ctx context.Context, r *Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holds, r.ID)
	r.committed = true
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, r *Reservation) error {
	if r.committed || r.released {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.holds[r.ID]; ok {
		l.sold[r.TicketID] -= r.Qty
		delete(l.holds, r.ID)
	}
	r.released = true
	return nil
}

func (l *MemoryLedger) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var released int64
	for id, h := range l.holds {
		if h.deadline.Before(now) {
			l.sold[h.ticketID] -= h.qty
			delete(l.holds, id)
			released++
		}
	}
	return released, nil
}
