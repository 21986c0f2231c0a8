package models

import (
	"time"

	"tbs/src/types"
)

type Coupon struct {
	ID                uint             `gorm:"primarykey" json:"id"`
	Code              string           `gorm:"uniqueIndex" json:"code"`
	Type              types.CouponType `json:"type"`
	Value             int64            `json:"value"`
	MaxDiscount       *int64           `json:"max_discount,omitempty"`
	ValidFrom         time.Time        `json:"valid_from"`
	ValidUntil        time.Time        `json:"valid_until"`
	MaxUses           *uint            `json:"max_uses,omitempty"`
	CurrentUses       uint             `json:"current_uses"`
	MaxUsesPerUser    uint             `json:"max_uses_per_user,omitempty"`
	MinPurchaseAmount *int64           `json:"min_purchase_amount,omitempty"`
	FirstTimeOnly     bool             `json:"first_time_only"`
	Active            bool             `gorm:"default:true" json:"active"`
	CreatedBy         uint             `json:"created_by,omitempty"`

	Redemptions []CouponRedemption `json:"redemptions,omitempty"`

	types.Timestamps
}

// CouponRedemption records one consumed use of a coupon. It is written in
// the same transaction that confirms the booking, so uses are never counted
// for checkouts that fail to commit.
type CouponRedemption struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	CouponID  uint   `gorm:"index" json:"coupon_id"`
	BookingID uint   `gorm:"uniqueIndex" json:"booking_id"`
	UserID    *uint  `gorm:"index" json:"user_id,omitempty"`
	Discount  int64  `json:"discount"`
	Code      string `json:"code"`

	Coupon  *Coupon  `json:"-"`
	Booking *Booking `json:"-"`

	types.Timestamps
}
