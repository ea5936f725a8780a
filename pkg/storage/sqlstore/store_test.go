package sqlstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/invoicegate/pkg/billing"
)

var (
	periodStart = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), ConnectionConfig{Driver: "sqlite3", DSN: ":memory:"}, nil)
	require.NoError(t, err, "Failed to open test database")
	t.Cleanup(func() { store.Close() })
	return store
}

func newInvoice(key, tenant string) *billing.Invoice {
	return &billing.Invoice{
		NaturalKey:       key,
		TenantID:         tenant,
		PlanType:         "pro",
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		Currency:         "usd",
		TotalTokens:      1000,
		TotalCost:        decimal.RequireFromString("10.25"),
		GovernanceEvents: 3,
		PaymentMetadata:  map[string]any{"customer": "cus_123"},
	}
}

func TestSQLiteCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	inv, created, err := store.Create(ctx, newInvoice("t1:2026-09:pro", "t1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, inv.ID)

	got, err := store.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "t1:2026-09:pro", got.NaturalKey)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, billing.InvoiceStatusDraft, got.Status)
	assert.True(t, got.PeriodStart.Equal(periodStart))
	assert.True(t, got.PeriodEnd.Equal(periodEnd))
	assert.Equal(t, int64(1000), got.TotalTokens)
	assert.True(t, got.TotalCost.Equal(decimal.RequireFromString("10.25")))
	assert.Equal(t, int64(3), got.GovernanceEvents)
	assert.Equal(t, "cus_123", got.PaymentMetadata["customer"])
	assert.Nil(t, got.VoidedAt)
	assert.Nil(t, got.VoidedBy)
	assert.Nil(t, got.FinalizedAt)
	assert.Nil(t, got.FinalizedBy)
}

func TestSQLiteCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	first, created, err := store.Create(ctx, newInvoice("dup", "t1"))
	require.NoError(t, err)
	require.True(t, created)

	again := newInvoice("dup", "t1")
	again.TotalTokens = 5
	second, created, err := store.Create(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1000), second.TotalTokens)
}

func TestSQLiteGetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Get(context.Background(), 42)
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestSQLiteListExactPeriod(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, _, err := store.Create(ctx, newInvoice("a", "t1"))
	require.NoError(t, err)
	_, _, err = store.Create(ctx, newInvoice("b", "t2"))
	require.NoError(t, err)

	shifted := newInvoice("c", "t1")
	shifted.PeriodEnd = periodEnd.Add(-time.Second)
	_, _, err = store.Create(ctx, shifted)
	require.NoError(t, err)

	// Same instants expressed in another zone still match exactly
	loc := time.FixedZone("UTC-5", -5*60*60)
	period := billing.Period{Start: periodStart.In(loc), End: periodEnd.In(loc)}

	all, err := store.List(ctx, billing.ListFilter{Period: &period})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].NaturalKey)
	assert.Equal(t, "b", all[1].NaturalKey)

	t1, err := store.List(ctx, billing.ListFilter{TenantID: "t1", Period: &period})
	require.NoError(t, err)
	require.Len(t, t1, 1)

	paged, err := store.List(ctx, billing.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "b", paged[0].NaturalKey)
}

func TestSQLiteUpdateStatusCAS(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	inv, _, err := store.Create(ctx, newInvoice("k", "t1"))
	require.NoError(t, err)

	at := time.Date(2026, 10, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.UpdateStatus(ctx, inv.ID, billing.InvoiceStatusDraft,
		billing.Transition{To: billing.InvoiceStatusFinalized, At: at, Actor: "admin:a"}))

	// Expected status no longer matches
	err = store.UpdateStatus(ctx, inv.ID, billing.InvoiceStatusDraft,
		billing.Transition{To: billing.InvoiceStatusVoid, At: at, Actor: "admin:b"})
	assert.ErrorIs(t, err, billing.ErrStatusConflict)

	// finalized -> finalized is rejected even when the caller claims the right source
	err = store.UpdateStatus(ctx, inv.ID, billing.InvoiceStatusFinalized,
		billing.Transition{To: billing.InvoiceStatusFinalized, At: at.Add(time.Hour), Actor: "admin:c"})
	assert.ErrorIs(t, err, billing.ErrStatusConflict)

	got, err := store.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusFinalized, got.Status)
	require.NotNil(t, got.FinalizedAt)
	assert.True(t, got.FinalizedAt.Equal(at))
	assert.Equal(t, "admin:a", *got.FinalizedBy)
	assert.Nil(t, got.VoidedAt)
	assert.True(t, got.TotalCost.Equal(decimal.RequireFromString("10.25")))

	drafts, err := store.List(ctx, billing.ListFilter{Statuses: []billing.InvoiceStatus{billing.InvoiceStatusDraft}})
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestSQLiteConcurrentFinalizeSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	inv, _, err := store.Create(ctx, newInvoice("race", "t1"))
	require.NoError(t, err)

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.UpdateStatus(ctx, inv.ID, billing.InvoiceStatusDraft,
				billing.Transition{To: billing.InvoiceStatusFinalized, At: time.Now(), Actor: "admin"})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, billing.ErrStatusConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(9), conflicts)
}

func TestUpdateStatusRejectsDraftTarget(t *testing.T) {
	store := setupTestStore(t)

	err := store.UpdateStatus(context.Background(), 1, billing.InvoiceStatusDraft,
		billing.Transition{To: billing.InvoiceStatusDraft, At: time.Now(), Actor: "x"})
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestUpdateStatusStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres, nil)
	at := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)

	t.Run("void stamps voided pair only", func(t *testing.T) {
		mock.ExpectExec(`UPDATE invoices SET status = \$1, voided_at = \$2, voided_by = \$3\s+WHERE id = \$4 AND status = \$5 AND voided_at IS NULL`).
			WithArgs("void", at, "admin:a", int64(7), "draft").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.UpdateStatus(context.Background(), 7, billing.InvoiceStatusDraft,
			billing.Transition{To: billing.InvoiceStatusVoid, At: at, Actor: "admin:a"})
		require.NoError(t, err)
	})

	t.Run("zero rows is a conflict", func(t *testing.T) {
		mock.ExpectExec(`UPDATE invoices SET status = \$1, finalized_at = \$2, finalized_by = \$3`).
			WithArgs("finalized", at, "admin:a", int64(7), "draft").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.UpdateStatus(context.Background(), 7, billing.InvoiceStatusDraft,
			billing.Transition{To: billing.InvoiceStatusFinalized, At: at, Actor: "admin:a"})
		assert.ErrorIs(t, err, billing.ErrStatusConflict)
	})

	t.Run("database failure", func(t *testing.T) {
		mock.ExpectExec(`UPDATE invoices SET status`).
			WillReturnError(errors.New("connection reset"))

		err := store.UpdateStatus(context.Background(), 7, billing.InvoiceStatusDraft,
			billing.Transition{To: billing.InvoiceStatusFinalized, At: at, Actor: "admin:a"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, billing.ErrStatusConflict)
		assert.Contains(t, err.Error(), "failed to update invoice status")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScansPostgresRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres, nil)
	voidedAt := time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "natural_key", "tenant_id", "plan_type", "period_start", "period_end", "currency",
		"total_tokens", "total_cost", "governance_events", "status", "payment_metadata",
		"voided_at", "voided_by", "finalized_at", "finalized_by", "created_at",
	}).AddRow(
		9, "t9:2026-09:pro", "t9", "pro", periodStart, periodEnd, "usd",
		int64(500), []byte("4.500000"), int64(0), "void", []byte(`{"provider":"none"}`),
		voidedAt, "admin:z", nil, nil, periodEnd,
	)
	mock.ExpectQuery(`SELECT (.+) FROM invoices WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnRows(rows)

	inv, err := store.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusVoid, inv.Status)
	assert.True(t, inv.TotalCost.Equal(decimal.RequireFromString("4.5")))
	require.NotNil(t, inv.VoidedAt)
	assert.True(t, inv.VoidedAt.Equal(voidedAt))
	assert.Equal(t, "admin:z", *inv.VoidedBy)
	assert.Nil(t, inv.FinalizedAt)
	assert.Equal(t, "none", inv.PaymentMetadata["provider"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListQueryShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres, nil)
	period := billing.NewPeriod(periodStart, periodEnd)

	mock.ExpectQuery(`SELECT (.+) FROM invoices WHERE tenant_id = \$1 AND period_start = \$2 AND period_end = \$3 AND status IN \(\$4, \$5\) ORDER BY id LIMIT \$6 OFFSET \$7`).
		WithArgs("t1", periodStart, periodEnd, "draft", "finalized", 50, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	invoices, err := store.List(context.Background(), billing.ListFilter{
		TenantID: "t1",
		Period:   &period,
		Statuses: []billing.InvoiceStatus{billing.InvoiceStatusDraft, billing.InvoiceStatusFinalized},
		Limit:    50,
		Offset:   100,
	})
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListKeysetQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres, nil)
	period := billing.NewPeriod(periodStart, periodEnd)

	mock.ExpectQuery(`SELECT (.+) FROM invoices WHERE period_start = \$1 AND period_end = \$2 AND id > \$3 ORDER BY id LIMIT \$4 OFFSET \$5`).
		WithArgs(periodStart, periodEnd, int64(200), 200, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	invoices, err := store.List(context.Background(), billing.ListFilter{
		Period:  &period,
		AfterID: 200,
		Limit:   200,
	})
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteListAfterIDSurvivesVoid(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	var ids []int64
	for _, key := range []string{"a", "b", "c", "d"} {
		inv, _, err := store.Create(ctx, newInvoice(key, "t1"))
		require.NoError(t, err)
		ids = append(ids, inv.ID)
	}
	filter := billing.ListFilter{
		Statuses: []billing.InvoiceStatus{billing.InvoiceStatusDraft},
		Limit:    2,
	}

	first, err := store.List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, first, 2)

	require.NoError(t, store.UpdateStatus(ctx, ids[0], billing.InvoiceStatusDraft,
		billing.Transition{To: billing.InvoiceStatusVoid, At: time.Now(), Actor: "admin"}))

	filter.AfterID = first[len(first)-1].ID
	second, err := store.List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "c", second[0].NaturalKey)
	assert.Equal(t, "d", second[1].NaturalKey)
}

func TestSQLiteCostKeepsFullPrecision(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	inv := newInvoice("precise", "t1")
	inv.TotalCost = decimal.RequireFromString("10.1234567")
	created, _, err := store.Create(ctx, inv)
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.1234567", got.TotalCost.String())
}

func TestMigratePostgresCostColumnIsUnscaled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres, nil)
	mock.ExpectExec(`total_cost\s+NUMERIC NOT NULL`).WillReturnResult(sqlmock.NewResult(0, 0))
	for range postgresSchema[1:] {
		mock.ExpectExec(`CREATE INDEX`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDatabaseFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectSQLite, nil)
	mock.ExpectQuery(`SELECT (.+) FROM invoices`).WillReturnError(errors.New("database error"))

	_, err = store.List(context.Background(), billing.ListFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list invoices")
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", DialectSQLite.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = $1 AND b = $2", DialectPostgres.rebind("a = ? AND b = ?"))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	d, err = ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_busy_timeout=5000", sqliteDSN("", 0))
	assert.Equal(t, "/var/lib/ig.db?mode=rwc&_busy_timeout=250", sqliteDSN("/var/lib/ig.db?mode=rwc", 250*time.Millisecond))
	assert.Equal(t, "x.db?_busy_timeout=1", sqliteDSN("x.db?_busy_timeout=1", time.Second))
}
