// Package coupons evaluates promotional codes against their constraints and
// the redemption ledger. Validation is read-only and repeatable; usage
// counters only move when a booking commits.
package coupons

import (
	"context"
	"errors"
	"strings"
	"time"

	"tbs/src/models"
	"tbs/src/pricing"
	"tbs/src/types"

	"gorm.io/gorm"
)

var (
	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponInactive      = errors.New("coupon is not active")
	ErrCouponNotStarted    = errors.New("coupon is not yet valid")
	ErrCouponExpired       = errors.New("coupon has expired")
	ErrCouponExhausted     = errors.New("coupon usage limit reached")
	ErrCouponMinPurchase   = errors.New("purchase amount below coupon minimum")
	ErrCouponUserLimit     = errors.New("coupon already used by this user")
	ErrCouponFirstTimeOnly = errors.New("coupon is for first purchases only")
)

// Usage is the acting identity's standing against the redemption ledger.
type Usage struct {
	UserRedemptions uint
	PriorBookings   int64
	Guest           bool
}

// Evaluate checks a loaded coupon against a selection and returns the
// discount in paise. Every rejection is one of the sentinel errors above.
func Evaluate(c *models.Coupon, lines []pricing.Line, subtotal int64, usage Usage, now time.Time) (int64, error) {
	if !c.Active {
		return 0, ErrCouponInactive
	}
	if now.Before(c.ValidFrom) {
		return 0, ErrCouponNotStarted
	}
	if !now.Before(c.ValidUntil) {
		return 0, ErrCouponExpired
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return 0, ErrCouponExhausted
	}
	if c.MinPurchaseAmount != nil && subtotal < *c.MinPurchaseAmount {
		return 0, ErrCouponMinPurchase
	}
	if c.FirstTimeOnly && (usage.Guest || usage.PriorBookings > 0) {
		return 0, ErrCouponFirstTimeOnly
	}
	if c.MaxUsesPerUser > 0 && !usage.Guest && usage.UserRedemptions >= c.MaxUsesPerUser {
		return 0, ErrCouponUserLimit
	}

	var discount int64
	switch c.Type {
	case types.COUPON_PERCENTAGE:
		discount = pricing.RoundPercent(subtotal, c.Value)
		if c.MaxDiscount != nil && discount > *c.MaxDiscount {
			discount = *c.MaxDiscount
		}
	case types.COUPON_FIXED:
		discount = c.Value
	case types.COUPON_BOGO:
		discount = bogoDiscount(lines)
		if c.MaxDiscount != nil && discount > *c.MaxDiscount {
			discount = *c.MaxDiscount
		}
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}

// bogoDiscount gives 50% off one unit of the lowest-priced line.
func bogoDiscount(lines []pricing.Line) int64 {
	var lowest int64 = -1
	for _, l := range lines {
		if lowest < 0 || l.UnitPrice < lowest {
			lowest = l.UnitPrice
		}
	}
	if lowest < 0 {
		return 0
	}
	return pricing.RoundPercent(lowest, 50)
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validator loads coupons and ledger usage from the database and applies
// Evaluate. A nil userID marks a guest checkout.
type Validator struct {
	DB *gorm.DB
}

func NewValidator(db *gorm.DB) *Validator {
	return &Validator{DB: db}
}

func (v *Validator) Validate(ctx context.Context, code string, lines []pricing.Line, subtotal int64, userID *uint, now time.Time) (*models.Coupon, int64, error) {
	var coupon models.Coupon
	err := v.DB.WithContext(ctx).
		Where("code = ?", NormalizeCode(code)).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrCouponNotFound
		}
		return nil, 0, err
	}

	usage := Usage{Guest: userID == nil}
	if userID != nil {
		var redemptions int64
		err = v.DB.WithContext(ctx).
			Model(&models.CouponRedemption{}).
			Where("coupon_id = ? AND user_id = ?", coupon.ID, *userID).
			Count(&redemptions).Error
		if err != nil {
			return nil, 0, err
		}
		usage.UserRedemptions = uint(redemptions)
		if coupon.FirstTimeOnly {
			err = v.DB.WithContext(ctx).
				Model(&models.Booking{}).
				Where("user_id = ?", *userID).
				Count(&usage.PriorBookings).Error
			if err != nil {
				return nil, 0, err
			}
		}
	}

	discount, err := Evaluate(&coupon, lines, subtotal, usage, now)
	if err != nil {
		return nil, 0, err
	}
	return &coupon, discount, nil
}

// IsRejection reports whether err is a coupon rejection rather than an
// infrastructure failure. Callers pricing a cart degrade rejections to
// "no discount" instead of aborting.
func IsRejection(err error) bool {
	for _, r := range []error{
		ErrCouponNotFound, ErrCouponInactive, ErrCouponNotStarted,
		ErrCouponExpired, ErrCouponExhausted, ErrCouponMinPurchase,
		ErrCouponUserLimit, ErrCouponFirstTimeOnly,
	} {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
