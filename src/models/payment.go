package models

import (
	"time"

	"tbs/src/types"

	"github.com/google/uuid"
)

// PaymentOrder is the gateway-side order a customer pays against. One order
// belongs to one checkout attempt; the breakdown it was priced with is
// frozen on the row so verification can compare amounts later.
type PaymentOrder struct {
	ID         uuid.UUID                `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	OrderRef   string                   `gorm:"uniqueIndex" json:"order_ref"`
	EventID    uint                     `json:"event_id,omitempty"`
	UserID     *uint                    `json:"user_id,omitempty"`
	Amount     int64                    `json:"amount"`
	Currency   string                   `json:"currency"`
	CouponCode *string                  `json:"coupon_code,omitempty"`
	Status     types.PaymentOrderStatus `gorm:"default:'created'" json:"status"`
	Breakdown  types.JSONB              `gorm:"type:jsonb" json:"breakdown"`
	Selection  types.JSONB              `gorm:"type:jsonb" json:"selection"`
	Guest      *types.Metadata          `gorm:"type:jsonb" json:"guest,omitempty"`
	ExpiresAt  time.Time                `json:"expires_at"`

	Event *Event `json:"-"`
	User  *User  `json:"-"`

	types.Timestamps
}

type Payment struct {
	ID         uuid.UUID           `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	PaymentRef string              `gorm:"uniqueIndex" json:"payment_ref"`
	OrderRef   string              `gorm:"index" json:"order_ref"`
	Amount     int64               `json:"amount"`
	Currency   string              `json:"currency"`
	Status     types.PaymentStatus `gorm:"default:'pending'" json:"status"`
	Signature  string              `json:"-"`
	VerifiedAt *time.Time          `json:"verified_at,omitempty"`
	Metadata   *types.Metadata     `gorm:"type:jsonb" json:"metadata,omitempty"`

	types.Timestamps
}
