package models

import (
	"tbs/src/types"
)

// Booking is the durable record of a committed checkout. PaymentRef carries
// a unique index: committing the same verified payment twice can only ever
// produce one booking row.
type Booking struct {
	ID            uint                `gorm:"primarykey" json:"id"`
	BookingNumber string              `gorm:"uniqueIndex" json:"booking_number"`
	PaymentRef    string              `gorm:"uniqueIndex" json:"payment_ref"`
	OrderRef      string              `gorm:"index" json:"order_ref"`
	Status        types.BookingStatus `gorm:"default:'confirmed'" json:"status"`
	EventID       uint                `json:"event_id,omitempty"`
	UserID        *uint               `json:"user_id,omitempty"`
	GuestEmail    *string             `json:"guest_email,omitempty"`
	Subtotal      int64               `json:"subtotal"`
	Discount      int64               `json:"discount"`
	TicketTax     int64               `json:"ticket_tax"`
	PlatformFee   int64               `json:"platform_fee"`
	PlatformTax   int64               `json:"platform_fee_tax"`
	GrandTotal    int64               `json:"grand_total"`
	Currency      string              `json:"currency,omitempty"`

	Event      *Event            `gorm:"foreignKey:event_id" json:"event,omitempty"`
	User       *User             `gorm:"foreignKey:user_id" json:"user,omitempty"`
	Items      []BookingItem     `json:"items,omitempty"`
	Redemption *CouponRedemption `json:"redemption,omitempty"`

	types.Timestamps
}

type BookingItem struct {
	ID        uint  `gorm:"primarykey" json:"id"`
	BookingID uint  `gorm:"index" json:"booking_id,omitempty"`
	TicketID  uint  `json:"ticket_id"`
	Qty       int   `json:"qty"`
	UnitPrice int64 `json:"unit_price"`
	LineTotal int64 `json:"line_total"`

	Ticket *Ticket `json:"ticket,omitempty"`

	types.Timestamps
}
