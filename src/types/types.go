package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	valueString, err := json.Marshal(m)
	return string(valueString), err
}
func (m *Metadata) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &m)
}

type EventStatus string

const (
	EVENT_DRAFT     EventStatus = "draft"
	EVENT_OPEN      EventStatus = "open"
	EVENT_CLOSED    EventStatus = "closed"
	EVENT_COMPLETED EventStatus = "completed"
	EVENT_ARCHIVED  EventStatus = "archived"
)

type TicketStatus string

const (
	TICKET_DRAFT  TicketStatus = "draft"
	TICKET_OPEN   TicketStatus = "open"
	TICKET_CLOSED TicketStatus = "closed"
)

type PaymentStatus string

const (
	PAYMENT_PENDING  PaymentStatus = "pending"
	PAYMENT_CAPTURED PaymentStatus = "captured"
	PAYMENT_VERIFIED PaymentStatus = "verified"
	PAYMENT_FAILED   PaymentStatus = "failed"
	PAYMENT_EXPIRED  PaymentStatus = "expired"
)

type PaymentOrderStatus string

const (
	ORDER_CREATED   PaymentOrderStatus = "created"
	ORDER_PAID      PaymentOrderStatus = "paid"
	ORDER_EXPIRED   PaymentOrderStatus = "expired"
	ORDER_CANCELLED PaymentOrderStatus = "cancelled"
)

type BookingStatus string

const (
	BOOKING_CONFIRMED BookingStatus = "confirmed"
	BOOKING_CANCELED  BookingStatus = "canceled"
)

type CouponType string

const (
	COUPON_PERCENTAGE CouponType = "percentage"
	COUPON_FIXED      CouponType = "fixed"
	COUPON_BOGO       CouponType = "bogo"
)

type SelectionItem struct {
	TicketID uint `json:"ticket" binding:"required"`
	Qty      int  `json:"qty" binding:"required"`
}

type PriceSelectionRequestBody struct {
	EventID    uint            `json:"event" binding:"required"`
	Items      []SelectionItem `json:"items" binding:"required,min=1"`
	CouponCode string          `json:"coupon_code,omitempty"`
}

type GuestDetails struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type CreateCheckoutRequestBody struct {
	EventID    uint            `json:"event" binding:"required"`
	Items      []SelectionItem `json:"items" binding:"required,min=1"`
	CouponCode string          `json:"coupon_code,omitempty"`
	Guest      *GuestDetails   `json:"guest,omitempty"`
}

type PaymentCallbackRequestBody struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

type CreateEventRequestBody struct {
	Title    string `json:"title" binding:"required"`
	Name     string `json:"name" binding:"required"`
	About    string `json:"about,omitempty"`
	Location string `json:"location,omitempty"`
	DateTime string `json:"date_time" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
}

type CreateTicketRequestBody struct {
	Tier     string `json:"tier" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	Price    int64  `json:"price" binding:"required"`
	EventID  uint   `json:"event" binding:"required"`
	Capacity uint   `json:"capacity" binding:"required"`
}

type CreateCouponRequestBody struct {
	Code              string `json:"code" binding:"required"`
	Type              string `json:"type" binding:"required,oneof=percentage fixed bogo"`
	Value             int64  `json:"value" binding:"required"`
	MaxDiscount       *int64 `json:"max_discount,omitempty"`
	ValidFrom         string `json:"valid_from" binding:"required" time_format:"2006-01-02 15:04:05 -07:00"`
	ValidUntil        string `json:"valid_until" binding:"required" time_format:"2006-01-02 15:04:05 -07:00"`
	MaxUses           *uint  `json:"max_uses,omitempty"`
	MaxUsesPerUser    uint   `json:"max_uses_per_user,omitempty"`
	MinPurchaseAmount *int64 `json:"min_purchase_amount,omitempty"`
	FirstTimeOnly     bool   `json:"first_time_only,omitempty"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type CouponCodeURIParams struct {
	Code string `uri:"code" binding:"required"`
}

type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}
