package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/storage/memory"
	"github.com/platinummonkey/invoicegate/pkg/usage"
)

// brokenListStore fails every List call
type brokenListStore struct {
	*memory.Store
}

func (brokenListStore) List(context.Context, billing.ListFilter) ([]*billing.Invoice, error) {
	return nil, errors.New("database is locked")
}

func TestGate_ReadyWhenAllOK(t *testing.T) {
	store := memory.New()
	export := &fakeExport{snapshots: map[string]*usage.Snapshot{
		"t1": snapshot(1000, "10.00", 0),
		"t2": snapshot(500, "5.00", 1),
	}}
	seedInvoice(t, store, "a", "t1", 1000, "10.00", 0)
	seedInvoice(t, store, "b", "t2", 500, "5.00", 1)

	gate := NewGate(store, newTestEngine(store, export), nil)
	result := gate.Assess(context.Background(), testPeriod)

	assert.True(t, result.Ready)
	assert.Equal(t, 2, result.Evaluated)
	assert.Empty(t, result.BlockingIssues)
	assert.NotNil(t, result.BlockingIssues)
}

func TestGate_OneIssuePerDistinctReason(t *testing.T) {
	store := memory.New()
	export := &fakeExport{snapshots: map[string]*usage.Snapshot{
		"t1": snapshot(1000, "10.00", 0),
	}}
	drift := seedInvoice(t, store, "a", "t1", 1001, "10.50", 0)
	unavailable := seedInvoice(t, store, "b", "t-missing", 10, "1.00", 0)
	seedInvoice(t, store, "c", "t1", 1000, "10.00", 0)

	result := NewGate(store, newTestEngine(store, export), nil).Assess(context.Background(), testPeriod)

	assert.False(t, result.Ready)
	assert.Equal(t, 3, result.Evaluated)
	require.Len(t, result.BlockingIssues, 3)

	assert.Equal(t, drift.ID, result.BlockingIssues[0].InvoiceID)
	assert.Equal(t, ReasonTokensMismatch, result.BlockingIssues[0].Reason)
	assert.Equal(t, drift.ID, result.BlockingIssues[1].InvoiceID)
	assert.Equal(t, ReasonCostMismatch, result.BlockingIssues[1].Reason)
	assert.Contains(t, result.BlockingIssues[1].Detail, "cost mismatch")

	assert.Equal(t, unavailable.ID, result.BlockingIssues[2].InvoiceID)
	assert.Equal(t, "t-missing", result.BlockingIssues[2].TenantID)
	assert.Equal(t, ReasonExportUnavailable, result.BlockingIssues[2].Reason)
}

func TestGate_SkipsVoidAndOtherPeriods(t *testing.T) {
	store := memory.New()
	export := &fakeExport{snapshots: map[string]*usage.Snapshot{"t1": snapshot(1000, "10.00", 0)}}

	voided := seedInvoice(t, store, "a", "t1", 1, "1.00", 0)
	require.NoError(t, store.UpdateStatus(context.Background(), voided.ID, billing.InvoiceStatusDraft,
		billing.Transition{To: billing.InvoiceStatusVoid, At: fixedNow, Actor: "admin"}))

	_, _, err := store.Create(context.Background(), &billing.Invoice{
		NaturalKey:  "other-period",
		TenantID:    "t1",
		PeriodStart: testPeriod.End,
		PeriodEnd:   testPeriod.End.AddDate(0, 1, 0),
		TotalTokens: 1,
	})
	require.NoError(t, err)

	result := NewGate(store, newTestEngine(store, export), nil).Assess(context.Background(), testPeriod)

	assert.True(t, result.Ready)
	assert.Zero(t, result.Evaluated)
	assert.Zero(t, export.Calls())
}

func TestGate_IncludesFinalizedInvoices(t *testing.T) {
	store := memory.New()
	export := &fakeExport{snapshots: map[string]*usage.Snapshot{"t1": snapshot(1000, "10.00", 0)}}
	inv := seedInvoice(t, store, "a", "t1", 2000, "10.00", 0)
	require.NoError(t, store.UpdateStatus(context.Background(), inv.ID, billing.InvoiceStatusDraft,
		billing.Transition{To: billing.InvoiceStatusFinalized, At: fixedNow, Actor: "admin"}))

	result := NewGate(store, newTestEngine(store, export), nil).Assess(context.Background(), testPeriod)

	assert.False(t, result.Ready)
	assert.Equal(t, 1, result.Evaluated)
}

func TestGate_PagesThroughLargePeriods(t *testing.T) {
	store := memory.New()
	export := &fakeExport{snapshots: map[string]*usage.Snapshot{"t1": snapshot(1, "1.00", 0)}}
	total := gatePageSize*2 + 3
	for i := 0; i < total; i++ {
		seedInvoice(t, store, fmt.Sprintf("k-%d", i), "t1", 1, "1.00", 0)
	}

	result := NewGate(store, newTestEngine(store, export), nil).Assess(context.Background(), testPeriod)

	assert.True(t, result.Ready)
	assert.Equal(t, total, result.Evaluated)
	assert.Equal(t, total, export.Calls())
}

func TestGate_StoreFailureIsSystemError(t *testing.T) {
	store := brokenListStore{memory.New()}
	export := &fakeExport{}

	result := NewGate(store, newTestEngine(store, export), nil).Assess(context.Background(), testPeriod)

	assert.False(t, result.Ready)
	require.Len(t, result.BlockingIssues, 1)
	assert.Equal(t, ReasonSystemError, result.BlockingIssues[0].Reason)
	assert.NotContains(t, result.BlockingIssues[0].Detail, "database is locked")
}

// voidingStore voids one invoice right after serving the first List page
type voidingStore struct {
	*memory.Store
	victim int64
	lists  int
}

func (s *voidingStore) List(ctx context.Context, filter billing.ListFilter) ([]*billing.Invoice, error) {
	page, err := s.Store.List(ctx, filter)
	s.lists++
	if s.lists == 1 {
		if err := s.Store.UpdateStatus(ctx, s.victim, billing.InvoiceStatusDraft,
			billing.Transition{To: billing.InvoiceStatusVoid, At: fixedNow, Actor: "admin"}); err != nil {
			return nil, err
		}
	}
	return page, err
}

func TestGate_VoidBetweenPagesDoesNotSkipInvoices(t *testing.T) {
	store := &voidingStore{Store: memory.New()}
	export := &fakeExport{snapshots: map[string]*usage.Snapshot{"t1": snapshot(1, "1.00", 0)}}

	first := seedInvoice(t, store.Store, "k-0", "t1", 1, "1.00", 0)
	store.victim = first.ID
	for i := 1; i < gatePageSize; i++ {
		seedInvoice(t, store.Store, fmt.Sprintf("k-%d", i), "t1", 1, "1.00", 0)
	}
	drifted := seedInvoice(t, store.Store, "k-drift", "t1", 2, "1.00", 0)
	seedInvoice(t, store.Store, "k-last", "t1", 1, "1.00", 0)

	result := NewGate(store, newTestEngine(store, export), nil).Assess(context.Background(), testPeriod)

	assert.False(t, result.Ready)
	assert.Equal(t, gatePageSize+2, result.Evaluated)
	require.Len(t, result.BlockingIssues, 1)
	assert.Equal(t, drifted.ID, result.BlockingIssues[0].InvoiceID)
	assert.Equal(t, ReasonTokensMismatch, result.BlockingIssues[0].Reason)
}
