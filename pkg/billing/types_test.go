package billing

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceStatuses(t *testing.T) {
	assert.Equal(t, InvoiceStatus("draft"), InvoiceStatusDraft)
	assert.Equal(t, InvoiceStatus("finalized"), InvoiceStatusFinalized)
	assert.Equal(t, InvoiceStatus("void"), InvoiceStatusVoid)

	assert.True(t, InvoiceStatusDraft.Valid())
	assert.False(t, InvoiceStatus("paid").Valid())

	assert.False(t, InvoiceStatusDraft.Terminal())
	assert.True(t, InvoiceStatusFinalized.Terminal())
	assert.True(t, InvoiceStatusVoid.Terminal())
}

func TestPeriodValidate(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, NewPeriod(start, end).Validate())
	})

	t.Run("missing bound", func(t *testing.T) {
		err := Period{Start: start}.Validate()
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("end before start", func(t *testing.T) {
		err := NewPeriod(end, start).Validate()
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("empty length", func(t *testing.T) {
		assert.Error(t, NewPeriod(start, start).Validate())
	})
}

func TestPeriodEqualIsExact(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	p := NewPeriod(start, end)

	// Same instants in another zone are equal
	loc := time.FixedZone("UTC+2", 2*60*60)
	assert.True(t, p.Equal(Period{Start: start.In(loc), End: end.In(loc)}))

	// One second off is a different period
	assert.False(t, p.Equal(NewPeriod(start, end.Add(-time.Second))))
}

func TestInvoiceClone(t *testing.T) {
	actor := "admin:a"
	now := time.Now()
	inv := &Invoice{
		ID:              1,
		TotalCost:       decimal.RequireFromString("10.00"),
		PaymentMetadata: map[string]any{"customer": "cus_1"},
		VoidedAt:        &now,
		VoidedBy:        &actor,
	}

	c := inv.Clone()
	c.PaymentMetadata["customer"] = "changed"
	*c.VoidedBy = "someone else"

	assert.Equal(t, "cus_1", inv.PaymentMetadata["customer"])
	assert.Equal(t, "admin:a", *inv.VoidedBy)
	assert.Nil(t, (*Invoice)(nil).Clone())
}

func TestListFilterMatches(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	period := NewPeriod(start, start.AddDate(0, 1, 0))
	inv := &Invoice{
		TenantID:    "tenant-a",
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Status:      InvoiceStatusDraft,
	}

	assert.True(t, ListFilter{}.Matches(inv))
	assert.True(t, ListFilter{TenantID: "tenant-a", Period: &period}.Matches(inv))
	assert.False(t, ListFilter{TenantID: "tenant-b"}.Matches(inv))
	assert.True(t, ListFilter{Statuses: []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusFinalized}}.Matches(inv))
	assert.False(t, ListFilter{Statuses: []InvoiceStatus{InvoiceStatusVoid}}.Matches(inv))

	other := NewPeriod(start.AddDate(0, 1, 0), start.AddDate(0, 2, 0))
	assert.False(t, ListFilter{Period: &other}.Matches(inv))
}

func TestTransitionErrorCategories(t *testing.T) {
	tests := []struct {
		reason string
		is     []error
		isNot  []error
	}{
		{ReasonMissingActor, []error{ErrValidation}, []error{ErrInvalidState}},
		{ReasonNotFound, []error{ErrInvoiceNotFound}, []error{ErrInvalidState}},
		{ReasonWrongSourceState, []error{ErrInvalidState}, []error{ErrReconciliationNotOK}},
		{ReasonConcurrentChange, []error{ErrInvalidState}, []error{ErrStoreFailure}},
		{ReasonReconciliationNot, []error{ErrInvalidState, ErrReconciliationNotOK}, []error{ErrValidation}},
		{ReasonStoreFailure, []error{ErrStoreFailure}, []error{ErrInvalidState}},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &TransitionError{InvoiceID: 7, Op: "finalize", Reason: tt.reason})
			for _, target := range tt.is {
				assert.ErrorIs(t, err, target)
			}
			for _, target := range tt.isNot {
				assert.NotErrorIs(t, err, target)
			}

			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, int64(7), te.InvoiceID)
		})
	}
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{
		InvoiceID: 8,
		Op:        "finalize",
		From:      InvoiceStatusDraft,
		Reason:    ReasonReconciliationNot,
		Details:   []string{"export unavailable: timeout"},
	}
	assert.Equal(t, "finalize invoice 8: reconciliation_not_ok (status draft): export unavailable: timeout", err.Error())

	cause := errors.New("disk full")
	storeErr := &TransitionError{InvoiceID: 3, Op: "void", Reason: ReasonStoreFailure, Err: cause}
	assert.Contains(t, storeErr.Error(), "disk full")
	assert.ErrorIs(t, storeErr, cause)
}
