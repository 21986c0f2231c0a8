package models

import (
	"time"

	"tbs/src/types"
)

// Ticket is a tier of admission for an event. Capacity and Sold together
// form the inventory counter: Sold only moves through conditional updates
// that keep Sold <= Capacity.
type Ticket struct {
	ID       uint               `gorm:"primarykey" json:"id"`
	Tier     string             `json:"tier,omitempty"`
	Status   types.TicketStatus `gorm:"default:'draft'" json:"status,omitempty"`
	Price    int64              `json:"price"`
	Currency string             `json:"currency,omitempty"`
	Capacity uint               `json:"capacity"`
	Sold     uint               `json:"sold"`
	EventID  uint               `json:"event_id,omitempty"`
	Metadata *types.Metadata    `gorm:"type:jsonb" json:"metadata,omitempty"`

	Event *Event `json:"event,omitempty"`

	types.Timestamps
}

func (t *Ticket) Available() uint {
	if t.Sold >= t.Capacity {
		return 0
	}
	return t.Capacity - t.Sold
}

// TicketHold is one pending reservation against a ticket's capacity. The
// held quantity is already folded into Sold; the row exists so a hold
// abandoned mid-commit can be swept back after its deadline. Committed
// holds are deleted immediately.
type TicketHold struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	TicketID   uint      `gorm:"index" json:"ticket_id"`
	Qty        int       `json:"qty"`
	ValidUntil time.Time `gorm:"index" json:"valid_until"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}
