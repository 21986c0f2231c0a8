package inventory

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockLedger(t *testing.T) (*GormLedger, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	assert.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 conn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	assert.NoError(t, err)
	return NewGormLedger(db), mock
}

func TestReserveConditionalUpdate(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "tickets" SET "sold"=sold + $1`)).
		WithArgs(2, sqlmock.AnyArg(), 7, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "ticket_holds"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	r, err := ledger.Reserve(context.Background(), 7, 2)
	assert.NoError(t, err)
	assert.Equal(t, uint(7), r.TicketID)
	assert.Equal(t, 2, r.Qty)
	assert.Equal(t, uint(11), r.HoldID)
	assert.False(t, r.Deadline.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveOversold(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "tickets"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "tickets"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := ledger.Reserve(context.Background(), 7, 2)
	assert.ErrorIs(t, err, ErrOversold)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveUnknownTicket(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "tickets"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "tickets"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err := ledger.Reserve(context.Background(), 999, 1)
	assert.ErrorIs(t, err, ErrUnknownTicket)
}

func TestReserveRejectsBadQuantity(t *testing.T) {
	ledger, _ := newMockLedger(t)
	_, err := ledger.Reserve(context.Background(), 7, 0)
	assert.ErrorIs(t, err, ErrBadQuantity)
	_, err = ledger.Reserve(context.Background(), 7, -1)
	assert.ErrorIs(t, err, ErrBadQuantity)
}

func TestReleasePutsQuantityBack(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ticket_holds"`)).
		WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "tickets" SET "sold"=sold - $1`)).
		WithArgs(2, sqlmock.AnyArg(), 7, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r := &Reservation{HoldID: 11, TicketID: 7, Qty: 2}
	assert.NoError(t, ledger.Release(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())

	// released token is inert on a second call
	assert.NoError(t, ledger.Release(context.Background(), r))
}

func TestReleaseSkipsCounterWhenHoldAlreadySwept(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ticket_holds"`)).
		WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	r := &Reservation{HoldID: 11, TicketID: 7, Qty: 2}
	assert.NoError(t, ledger.Release(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitDeletesHold(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ticket_holds"`)).
		WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := &Reservation{HoldID: 11, TicketID: 7, Qty: 2}
	assert.NoError(t, ledger.Commit(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())

	// committed token can no longer be released
	assert.NoError(t, ledger.Release(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiredReleasesAbandonedHolds(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ticket_holds" WHERE valid_until < $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ticket_id", "qty", "valid_until"}).
			AddRow(11, 7, 2, time.Now().Add(-time.Hour)))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ticket_holds"`)).
		WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "tickets" SET "sold"=sold - $1`)).
		WithArgs(2, sqlmock.AnyArg(), 7, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	released, err := ledger.SweepExpired(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Equal(t, int64(1), released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiredSkipsCommittedHold(t *testing.T) {
	ledger, mock := newMockLedger(t)

	// a commit deleted the hold between the scan and the sweep transaction
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ticket_holds" WHERE valid_until < $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ticket_id", "qty", "valid_until"}).
			AddRow(11, 7, 2, time.Now().Add(-time.Hour)))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ticket_holds"`)).
		WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	released, err := ledger.SweepExpired(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Equal(t, int64(0), released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryLedgerConcurrentReserves(t *testing.T) {
	const capacity = 50
	ledger := NewMemoryLedger()
	ledger.SetCapacity(1, capacity)

	var wg sync.WaitGroup
	var succeeded, oversold int64
	var mu sync.Mutex
	for i := 0; i < 2*capacity; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(context.Background(), 1, 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if err == ErrOversold {
				oversold++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(capacity), succeeded)
	assert.Equal(t, int64(capacity), oversold)
	assert.Equal(t, capacity, ledger.Sold(1))
}

func TestMemoryLedgerReleaseRestoresCapacity(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.SetCapacity(1, 1)

	r, err := ledger.Reserve(context.Background(), 1, 1)
	assert.NoError(t, err)

	_, err = ledger.Reserve(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrOversold)

	assert.NoError(t, ledger.Release(context.Background(), r))
	_, err = ledger.Reserve(context.Background(), 1, 1)
	assert.NoError(t, err)
}

func TestMemoryLedgerSweepExpired(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.SetCapacity(1, 2)

	_, err := ledger.Reserve(context.Background(), 1, 1)
	assert.NoError(t, err)
	committed, err := ledger.Reserve(context.Background(), 1, 1)
	assert.NoError(t, err)
	assert.NoError(t, ledger.Commit(context.Background(), committed))

	// only the uncommitted hold comes back
	released, err := ledger.SweepExpired(context.Background(), time.Now().Add(ledger.HoldTTL+time.Minute))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), released)
	assert.Equal(t, 1, ledger.Sold(1))
}
