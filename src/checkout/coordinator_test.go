package checkout

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"tbs/src/inventory"
	"tbs/src/types"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type fakeGateway struct {
	orderRef  string
	createErr error
	verifyErr error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]any) (string, error) {
	return g.orderRef, g.createErr
}
func (g *fakeGateway) VerifyCallback(orderRef, paymentRef, signature string) error {
	return g.verifyErr
}
func (g *fakeGateway) VerifyWebhook(body []byte, signature string) error {
	return g.verifyErr
}

func newMockCoordinator(t *testing.T, gw Gateway, ledger inventory.Ledger) (*Coordinator, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	assert.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 conn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	assert.NoError(t, err)
	return NewCoordinator(db, ledger, gw, 30*time.Minute), mock
}

const (
	orderJSON     = `{"subtotal":100000,"discount":0,"ticket_tax":18000,"platform_fee":10000,"platform_fee_tax":1800,"grand_total":129800}`
	selectionJSON = `{"items":[{"ticket":1,"qty":2,"unit_price":50000}]}`
)

func orderRow(couponCode *string, breakdown string) *sqlmock.Rows {
	cols := []string{"id", "order_ref", "event_id", "amount", "currency", "status", "breakdown", "selection", "expires_at"}
	vals := []driver.Value{uuid.NewString(), "order_abc", 1, int64(129800), "INR", "created", []byte(breakdown), []byte(selectionJSON), time.Now().Add(time.Hour)}
	if couponCode != nil {
		cols = append(cols, "coupon_code")
		vals = append(vals, *couponCode)
	}
	rows := sqlmock.NewRows(cols)
	rows.AddRow(vals...)
	return rows
}

func TestRazorpayCallbackSignature(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_SECRET", "test_secret")
	gw := NewRazorpayGateway()

	// HMAC-SHA256("order_abc|pay_xyz", "test_secret")
	sig := signPayload([]byte("order_abc|pay_xyz"), "test_secret")
	assert.NoError(t, gw.VerifyCallback("order_abc", "pay_xyz", sig))

	assert.ErrorIs(t, gw.VerifyCallback("order_abc", "pay_xyz", sig+"00"), ErrVerificationFailed)
	assert.ErrorIs(t, gw.VerifyCallback("order_abc", "pay_other", sig), ErrVerificationFailed)
	assert.ErrorIs(t, gw.VerifyCallback("order_abc", "pay_xyz", ""), ErrVerificationFailed)
}

func TestRazorpayWebhookSignature(t *testing.T) {
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "hook_secret")
	gw := NewRazorpayGateway()

	body := []byte(`{"event":"payment.captured"}`)
	sig := signPayload(body, "hook_secret")
	assert.NoError(t, gw.VerifyWebhook(body, sig))
	assert.ErrorIs(t, gw.VerifyWebhook([]byte(`{"event":"tampered"}`), sig), ErrVerificationFailed)
}

func TestCommitRejectsTamperedSignature(t *testing.T) {
	gw := &fakeGateway{verifyErr: ErrVerificationFailed}
	c, mock := newMockCoordinator(t, gw, inventory.NewMemoryLedger())

	_, err := c.Commit(context.Background(), "order_abc", "pay_xyz", "garbage")
	assert.ErrorIs(t, err, ErrVerificationFailed)
	// nothing may touch the database on a bad signature
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReplayReturnsExistingBooking(t *testing.T) {
	gw := &fakeGateway{}
	c, mock := newMockCoordinator(t, gw, inventory.NewMemoryLedger())

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_number", "payment_ref", "grand_total"}).
			AddRow(42, "BK-existing", "pay_xyz", int64(129800)))

	b, err := c.Commit(context.Background(), "order_abc", "pay_xyz", "sig")
	assert.NoError(t, err)
	assert.Equal(t, uint(42), b.ID)
	assert.Equal(t, "BK-existing", b.BookingNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitOversoldLeavesPaymentVerified(t *testing.T) {
	gw := &fakeGateway{}
	ledger := inventory.NewMemoryLedger()
	ledger.SetCapacity(1, 1) // selection wants 2
	c, mock := newMockCoordinator(t, gw, ledger)

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "payment_orders"`).
		WillReturnRows(orderRow(nil, orderJSON))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	_, err := c.Commit(context.Background(), "order_abc", "pay_xyz", "sig")
	assert.ErrorIs(t, err, inventory.ErrOversold)
	// the payment row was persisted as verified before inventory was touched
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 0, ledger.Sold(1))
}

func TestCommitHappyPath(t *testing.T) {
	gw := &fakeGateway{}
	ledger := inventory.NewMemoryLedger()
	ledger.SetCapacity(1, 10)
	c, mock := newMockCoordinator(t, gw, ledger)

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "payment_orders"`).
		WillReturnRows(orderRow(nil, orderJSON))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`INSERT INTO "booking_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE "payment_orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b, err := c.Commit(context.Background(), "order_abc", "pay_xyz", "sig")
	assert.NoError(t, err)
	assert.Equal(t, "pay_xyz", b.PaymentRef)
	assert.Equal(t, int64(129800), b.GrandTotal)
	assert.NotEmpty(t, b.BookingNumber)
	assert.Len(t, b.Items, 1)
	assert.Equal(t, 2, ledger.Sold(1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitCouponRevoked(t *testing.T) {
	gw := &fakeGateway{}
	ledger := inventory.NewMemoryLedger()
	ledger.SetCapacity(1, 10)
	c, mock := newMockCoordinator(t, gw, ledger)

	code := "SAVE200"
	discounted := `{"subtotal":100000,"discount":20000,"ticket_tax":18000,"platform_fee":10000,"platform_fee_tax":1800,"grand_total":109800}`

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "payment_orders"`).
		WillReturnRows(orderRow(&code, discounted))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	mock.ExpectBegin()
	// conditional increment misses: coupon was deactivated after pricing.
	// The predicate re-checks the whole window, not just expiry.
	mock.ExpectExec(regexp.QuoteMeta(`valid_from <= $4 AND valid_until > $5`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// race re-check before surfacing the error
	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := c.Commit(context.Background(), "order_abc", "pay_xyz", "sig")
	assert.ErrorIs(t, err, ErrCouponRevoked)
	// reserved seats went back
	assert.Equal(t, 0, ledger.Sold(1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitConflictOnDuplicateBooking(t *testing.T) {
	gw := &fakeGateway{}
	ledger := inventory.NewMemoryLedger()
	ledger.SetCapacity(1, 10)
	c, mock := newMockCoordinator(t, gw, ledger)

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "payment_orders"`).
		WillReturnRows(orderRow(nil, orderJSON))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	mock.ExpectBegin()
	// the unique payment_ref index trips: another commit won the insert
	mock.ExpectQuery(`INSERT INTO "bookings"`).
		WillReturnError(gorm.ErrDuplicatedKey)
	mock.ExpectRollback()

	// re-check finds nothing either, so the conflict surfaces
	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := c.Commit(context.Background(), "order_abc", "pay_xyz", "sig")
	assert.ErrorIs(t, err, ErrCommitConflict)
	assert.Equal(t, 0, ledger.Sold(1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitOrderNotFound(t *testing.T) {
	gw := &fakeGateway{}
	c, mock := newMockCoordinator(t, gw, inventory.NewMemoryLedger())

	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "payment_orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := c.Commit(context.Background(), "order_missing", "pay_xyz", "sig")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCommitClosedOrder(t *testing.T) {
	gw := &fakeGateway{}
	c, mock := newMockCoordinator(t, gw, inventory.NewMemoryLedger())

	rows := sqlmock.NewRows([]string{"id", "order_ref", "status"}).
		AddRow(uuid.NewString(), "order_abc", "expired")
	mock.ExpectQuery(`SELECT \* FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "payment_orders"`).
		WillReturnRows(rows)

	_, err := c.Commit(context.Background(), "order_abc", "pay_xyz", "sig")
	assert.ErrorIs(t, err, ErrOrderClosed)
}

func TestBeginGatewayUnavailable(t *testing.T) {
	gw := &fakeGateway{createErr: ErrGatewayUnavailable}
	c, mock := newMockCoordinator(t, gw, inventory.NewMemoryLedger())

	mock.ExpectQuery(`SELECT \* FROM "tickets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "price", "currency", "status"}).
			AddRow(1, 1, int64(50000), "INR", "open"))

	req := types.CreateCheckoutRequestBody{
		EventID: 1,
		Items:   []types.SelectionItem{{TicketID: 1, Qty: 2}},
		Guest:   &types.GuestDetails{Name: "Asha", Email: "asha@example.com"},
	}
	_, _, err := c.Begin(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestBeginRequiresBuyerIdentity(t *testing.T) {
	gw := &fakeGateway{orderRef: "order_abc"}
	c, mock := newMockCoordinator(t, gw, inventory.NewMemoryLedger())

	req := types.CreateCheckoutRequestBody{
		EventID: 1,
		Items:   []types.SelectionItem{{TicketID: 1, Qty: 2}},
	}
	_, _, err := c.Begin(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrBuyerIdentity)

	// guest details without an email are not contactable either
	req.Guest = &types.GuestDetails{Name: "Asha"}
	_, _, err = c.Begin(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrBuyerIdentity)

	// nothing may touch the database or the gateway before the check
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiredOrders(t *testing.T) {
	gw := &fakeGateway{}
	c, mock := newMockCoordinator(t, gw, inventory.NewMemoryLedger())

	mock.ExpectExec(`UPDATE "payment_orders"`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := c.SweepExpiredOrders(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
