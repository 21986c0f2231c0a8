// Package checkout orchestrates pricing, coupon redemption, inventory and
// payment verification into a single logical transaction that either yields
// a confirmed booking or fails without leaking money or seats.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"tbs/src/coupons"
	"tbs/src/inventory"
	"tbs/src/models"
	"tbs/src/models/scopes"
	"tbs/src/pricing"
	"tbs/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound  = errors.New("payment order not found")
	ErrOrderClosed    = errors.New("payment order is no longer payable")
	ErrCouponRevoked  = errors.New("coupon no longer redeemable")
	ErrCommitConflict = errors.New("booking commit conflict")
	ErrBuyerIdentity  = errors.New("a signed-in user or guest contact email is required")
)

type Coordinator struct {
	DB        *gorm.DB
	Ledger    inventory.Ledger
	Gateway   Gateway
	Validator *coupons.Validator
	OrderTTL  time.Duration

	// Now is swappable for tests.
	Now func() time.Time
}

func NewCoordinator(db *gorm.DB, ledger inventory.Ledger, gw Gateway, ttl time.Duration) *Coordinator {
	return &Coordinator{
		DB:        db,
		Ledger:    ledger,
		Gateway:   gw,
		Validator: coupons.NewValidator(db),
		OrderTTL:  ttl,
		Now:       time.Now,
	}
}

// Quote is the result of pricing a cart. CouponErr carries the rejection
// reason when a supplied code could not be applied; the quote itself still
// stands with no discount.
type Quote struct {
	Lines     []pricing.Line     `json:"-"`
	Breakdown *pricing.Breakdown `json:"breakdown"`
	Coupon    *models.Coupon     `json:"-"`
	CouponErr error              `json:"-"`
	Currency  string             `json:"currency"`
}

// Price loads the selected tickets and computes a full breakdown. Coupon
// rejections degrade to a zero discount; only unknown tickets or bad
// quantities abort.
func (c *Coordinator) Price(ctx context.Context, eventID uint, items []types.SelectionItem, couponCode string, userID *uint) (*Quote, error) {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.TicketID)
	}
	var tickets []models.Ticket
	err := c.DB.WithContext(ctx).
		Where("event_id = ? AND id IN (?) AND status = ?", eventID, ids, types.TICKET_OPEN).
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Ticket, len(tickets))
	for _, t := range tickets {
		byID[t.ID] = t
	}

	currency := "INR"
	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		t, ok := byID[it.TicketID]
		if !ok {
			return nil, fmt.Errorf("%w: ticket %d not open for sale", pricing.ErrInvalidSelection, it.TicketID)
		}
		if t.Currency != "" {
			currency = t.Currency
		}
		lines = append(lines, pricing.Line{TicketID: t.ID, Qty: it.Qty, UnitPrice: t.Price})
	}

	var subtotal int64
	for _, l := range lines {
		if l.Qty <= 0 {
			return nil, fmt.Errorf("%w: quantity %d for ticket %d", pricing.ErrInvalidSelection, l.Qty, l.TicketID)
		}
		subtotal += int64(l.Qty) * l.UnitPrice
	}

	quote := &Quote{Lines: lines, Currency: currency}
	var discount int64
	if couponCode != "" {
		coupon, d, err := c.Validator.Validate(ctx, couponCode, lines, subtotal, userID, c.Now())
		switch {
		case err == nil:
			quote.Coupon = coupon
			discount = d
		case coupons.IsRejection(err):
			quote.CouponErr = err
		default:
			return nil, err
		}
	}

	breakdown, err := pricing.Compute(lines, discount)
	if err != nil {
		return nil, err
	}
	quote.Breakdown = breakdown
	return quote, nil
}

// Begin prices the cart, creates the remote gateway order and persists the
// pending PaymentOrder with its frozen breakdown and selection. Every order
// must resolve to a contactable identity: a signed-in user, or guest
// details carrying an email.
func (c *Coordinator) Begin(ctx context.Context, req types.CreateCheckoutRequestBody, userID *uint) (*models.PaymentOrder, *Quote, error) {
	if userID == nil && (req.Guest == nil || req.Guest.Email == "") {
		return nil, nil, ErrBuyerIdentity
	}
	quote, err := c.Price(ctx, req.EventID, req.Items, req.CouponCode, userID)
	if err != nil {
		return nil, nil, err
	}

	receipt := uuid.NewString()
	orderRef, err := c.Gateway.CreateOrder(ctx, quote.Breakdown.GrandTotal, quote.Currency, receipt, map[string]any{
		"event_id": req.EventID,
	})
	if err != nil {
		return nil, nil, err
	}

	order := models.PaymentOrder{
		OrderRef:  orderRef,
		EventID:   req.EventID,
		UserID:    userID,
		Amount:    quote.Breakdown.GrandTotal,
		Currency:  quote.Currency,
		Status:    types.ORDER_CREATED,
		Breakdown: breakdownJSONB(quote.Breakdown),
		Selection: selectionJSONB(quote.Lines),
		ExpiresAt: c.Now().Add(c.OrderTTL),
	}
	if quote.Coupon != nil {
		code := quote.Coupon.Code
		order.CouponCode = &code
	}
	if req.Guest != nil {
		guest := types.Metadata{"name": req.Guest.Name, "email": req.Guest.Email, "phone": req.Guest.Phone}
		order.Guest = &guest
	}
	if err := c.DB.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, nil, err
	}
	return &order, quote, nil
}

// Commit turns a verified gateway callback into a confirmed booking.
// Replays with an already-committed paymentRef return the existing booking
// unchanged. An oversold selection fails the commit but leaves the payment
// verified so reconciliation can refund or retry it.
func (c *Coordinator) Commit(ctx context.Context, orderRef, paymentRef, signature string) (*models.Booking, error) {
	if err := c.Gateway.VerifyCallback(orderRef, paymentRef, signature); err != nil {
		log.Printf("Rejected callback for order %s: bad signature\n", orderRef)
		return nil, err
	}
	return c.CommitVerified(ctx, orderRef, paymentRef, signature)
}

// CommitVerified runs the commit for a payment whose authenticity was
// already established, e.g. by the webhook body signature.
func (c *Coordinator) CommitVerified(ctx context.Context, orderRef, paymentRef, signature string) (*models.Booking, error) {
	if b, err := c.findBooking(ctx, paymentRef); err != nil {
		return nil, err
	} else if b != nil {
		return b, nil
	}

	var order models.PaymentOrder
	err := c.DB.WithContext(ctx).Where("order_ref = ?", orderRef).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.Status == types.ORDER_EXPIRED || order.Status == types.ORDER_CANCELLED {
		return nil, ErrOrderClosed
	}

	now := c.Now()
	payment := models.Payment{
		PaymentRef: paymentRef,
		OrderRef:   orderRef,
		Amount:     order.Amount,
		Currency:   order.Currency,
		Status:     types.PAYMENT_VERIFIED,
		Signature:  signature,
		VerifiedAt: &now,
	}
	if err := c.DB.WithContext(ctx).Where("payment_ref = ?", paymentRef).FirstOrCreate(&payment).Error; err != nil {
		return nil, err
	}

	lines, err := selectionLines(order.Selection)
	if err != nil {
		return nil, err
	}

	reserved := make([]*inventory.Reservation, 0, len(lines))
	releaseAll := func() {
		for _, r := range reserved {
			if err := c.Ledger.Release(ctx, r); err != nil {
				log.Printf("Failed to release %d of ticket %d: %s\n", r.Qty, r.TicketID, err.Error())
			}
		}
	}
	for _, l := range lines {
		r, err := c.Ledger.Reserve(ctx, l.TicketID, l.Qty)
		if err != nil {
			releaseAll()
			return nil, err
		}
		reserved = append(reserved, r)
	}

	booking, err := c.writeBooking(ctx, &order, &payment, lines, now)
	if err != nil {
		releaseAll()
		// A concurrent commit of the same payment may have won the race.
		if b, ferr := c.findBooking(ctx, paymentRef); ferr == nil && b != nil {
			return b, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrCommitConflict
		}
		return nil, err
	}
	for _, r := range reserved {
		if err := c.Ledger.Commit(ctx, r); err != nil {
			log.Printf("Failed to commit reservation %s: %s\n", r.ID, err.Error())
		}
	}
	return booking, nil
}

func (c *Coordinator) findBooking(ctx context.Context, paymentRef string) (*models.Booking, error) {
	var booking models.Booking
	err := c.DB.WithContext(ctx).Where("payment_ref = ?", paymentRef).First(&booking).Error
	if err == nil {
		return &booking, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

// writeBooking performs the durable half of the commit in one database
// transaction: coupon usage, redemption record, booking row and order state
// all move together or not at all.
func (c *Coordinator) writeBooking(ctx context.Context, order *models.PaymentOrder, payment *models.Payment, lines []pricing.Line, now time.Time) (*models.Booking, error) {
	breakdown, err := orderBreakdown(order.Breakdown)
	if err != nil {
		return nil, err
	}

	booking := models.Booking{
		BookingNumber: fmt.Sprintf("BK-%s", uuid.NewString()),
		PaymentRef:    payment.PaymentRef,
		OrderRef:      order.OrderRef,
		Status:        types.BOOKING_CONFIRMED,
		EventID:       order.EventID,
		UserID:        order.UserID,
		Subtotal:      breakdown.Subtotal,
		Discount:      breakdown.Discount,
		TicketTax:     breakdown.TicketTax,
		PlatformFee:   breakdown.PlatformFee,
		PlatformTax:   breakdown.PlatformTax,
		GrandTotal:    breakdown.GrandTotal,
		Currency:      order.Currency,
	}
	if order.Guest != nil {
		if email, ok := (*order.Guest)["email"].(string); ok && email != "" {
			booking.GuestEmail = &email
		}
	}
	for _, l := range lines {
		booking.Items = append(booking.Items, models.BookingItem{
			TicketID:  l.TicketID,
			Qty:       l.Qty,
			UnitPrice: l.UnitPrice,
			LineTotal: int64(l.Qty) * l.UnitPrice,
		})
	}

	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var coupon models.Coupon
		if order.CouponCode != nil && breakdown.Discount > 0 {
			// Re-check the coupon at commit time. A code deactivated or
			// exhausted since pricing fails the commit instead of applying
			// a stale discount.
			res := tx.Model(&models.Coupon{}).
				Where("code = ? AND active = ? AND valid_from <= ? AND valid_until > ? AND (max_uses IS NULL OR current_uses < max_uses)",
					*order.CouponCode, true, now, now).
				Update("current_uses", gorm.Expr("current_uses + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrCouponRevoked
			}
			if err := tx.Where("code = ?", *order.CouponCode).First(&coupon).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(&booking).Error; err != nil {
			return err
		}

		if coupon.ID != 0 {
			redemption := models.CouponRedemption{
				CouponID:  coupon.ID,
				BookingID: booking.ID,
				UserID:    order.UserID,
				Discount:  breakdown.Discount,
				Code:      coupon.Code,
			}
			if err := tx.Create(&redemption).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.PaymentOrder{}).
			Where("id = ?", order.ID).
			Update("status", types.ORDER_PAID).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// SweepExpiredOrders cancels payment orders that were never paid within
// their window and returns expired inventory holds to capacity. Runs from
// the scheduler.
func (c *Coordinator) SweepExpiredOrders(ctx context.Context) (int64, error) {
	res := c.DB.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Scopes(scopes.WithStatus(string(types.ORDER_CREATED)), scopes.ExpiredBefore(c.Now())).
		Update("status", types.ORDER_EXPIRED)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("Expired %d abandoned payment orders\n", res.RowsAffected)
	}
	if released, err := c.Ledger.SweepExpired(ctx, c.Now()); err != nil {
		log.Printf("Failed to sweep expired ticket holds: %s\n", err.Error())
	} else if released > 0 {
		log.Printf("Released %d expired ticket holds\n", released)
	}
	return res.RowsAffected, nil
}

func breakdownJSONB(b *pricing.Breakdown) types.JSONB {
	return types.JSONB{
		"subtotal":         b.Subtotal,
		"discount":         b.Discount,
		"ticket_tax":       b.TicketTax,
		"platform_fee":     b.PlatformFee,
		"platform_fee_tax": b.PlatformTax,
		"grand_total":      b.GrandTotal,
	}
}

func selectionJSONB(lines []pricing.Line) types.JSONB {
	items := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		items = append(items, map[string]any{
			"ticket":     l.TicketID,
			"qty":        l.Qty,
			"unit_price": l.UnitPrice,
		})
	}
	return types.JSONB{"items": items}
}

func selectionLines(sel types.JSONB) ([]pricing.Line, error) {
	raw, err := json.Marshal(sel["items"])
	if err != nil {
		return nil, err
	}
	var items []struct {
		Ticket    uint  `json:"ticket"`
		Qty       int   `json:"qty"`
		UnitPrice int64 `json:"unit_price"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.Line{TicketID: it.Ticket, Qty: it.Qty, UnitPrice: it.UnitPrice})
	}
	return lines, nil
}

func orderBreakdown(b types.JSONB) (*pricing.Breakdown, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var out pricing.Breakdown
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
