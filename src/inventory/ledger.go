// Package inventory guards ticket capacity. Reservations move the sold
// counter through conditional updates only, so two concurrent buyers can
// never both take the last seat.
package inventory

import (
	"context"
	"errors"
	"time"

	"tbs/src/config"
	"tbs/src/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrOversold      = errors.New("not enough tickets available")
	ErrUnknownTicket = errors.New("unknown ticket")
	ErrBadQuantity   = errors.New("quantity must be positive")
)

// Reservation is the token handed back by Reserve. Until Commit it can be
// returned to Release to put the held quantity back. A token neither
// committed nor released by Deadline is fair game for the sweep.
type Reservation struct {
	ID        uuid.UUID
	HoldID    uint
	TicketID  uint
	Qty       int
	Deadline  time.Time
	committed bool
	released  bool
}

type Ledger interface {
	Reserve(ctx context.Context, ticketID uint, qty int) (*Reservation, error)
	Commit(ctx context.Context, r *Reservation) error
	Release(ctx context.Context, r *Reservation) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// GormLedger keeps the counter on the tickets row itself. Reserve is a
// single conditional UPDATE, which is what makes it safe across server
// instances, not just goroutines. Each reserve also writes a TicketHold
// row so a crash between Reserve and Commit cannot strand the quantity:
// the sweep finds the expired hold and puts it back.
type GormLedger struct {
	DB      *gorm.DB
	HoldTTL time.Duration
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{DB: db, HoldTTL: config.HOLD_TTL_MINUTES * time.Minute}
}

func (l *GormLedger) Reserve(ctx context.Context, ticketID uint, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrBadQuantity
	}
	deadline := time.Now().Add(l.HoldTTL)
	hold := models.TicketHold{TicketID: ticketID, Qty: qty, ValidUntil: deadline}
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Ticket{}).
			Where("id = ? AND sold + ? <= capacity", ticketID, qty).
			Update("sold", gorm.Expr("sold + ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Ticket{}).Where("id = ?", ticketID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrUnknownTicket
			}
			return ErrOversold
		}
		return tx.Create(&hold).Error
	})
	if err != nil {
		return nil, err
	}
	return &Reservation{ID: uuid.New(), HoldID: hold.ID, TicketID: ticketID, Qty: qty, Deadline: deadline}, nil
}

func (l *GormLedger) Commit(ctx context.Context, r *Reservation) error {
	// The quantity was already folded into sold at Reserve; committing
	// removes the hold row so the sweep can no longer touch it.
	if err := l.DB.WithContext(ctx).Delete(&models.TicketHold{}, r.HoldID).Error; err != nil {
		return err
	}
	r.committed = true
	return nil
}

func (l *GormLedger) Release(ctx context.Context, r *Reservation) error {
	if r.committed || r.released {
		return nil
	}
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.TicketHold{}, r.HoldID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// the sweep got here first
			return nil
		}
		return tx.Model(&models.Ticket{}).
			Where("id = ? AND sold >= ?", r.TicketID, r.Qty).
			Update("sold", gorm.Expr("sold - ?", r.Qty)).Error
	})
	if err != nil {
		return err
	}
	r.released = true
	return nil
}

// SweepExpired returns expired, uncommitted holds to capacity. The hold
// row is deleted before the counter moves, so a commit racing the sweep
// settles on whoever deletes the row.
func (l *GormLedger) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var holds []models.TicketHold
	if err := l.DB.WithContext(ctx).Where("valid_until < ?", now).Find(&holds).Error; err != nil {
		return 0, err
	}
	var released int64
	for _, h := range holds {
		err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Delete(&models.TicketHold{}, h.ID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			upd := tx.Model(&models.Ticket{}).
				Where("id = ? AND sold >= ?", h.TicketID, h.Qty).
				Update("sold", gorm.Expr("sold - ?", h.Qty))
			if upd.Error != nil {
				return upd.Error
			}
			released++
			return nil
		})
		if err != nil {
			return released, err
		}
	}
	return released, nil
}
