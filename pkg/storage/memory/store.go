// Package memory provides an in-process billing.InvoiceStore for tests and
// local development. It applies the same compare-and-swap semantics as the
// SQL store under a single mutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/invoicegate/pkg/billing"
)

type Store struct {
	mu       sync.RWMutex
	nextID   int64
	invoices map[int64]*billing.Invoice
	byKey    map[string]int64
	closed   bool
}

func New() *Store {
	return &Store{
		invoices: make(map[int64]*billing.Invoice),
		byKey:    make(map[string]int64),
	}
}

func (s *Store) Get(_ context.Context, id int64) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, billing.ErrInvoiceNotFound)
	}
	return inv.Clone(), nil
}

func (s *Store) List(_ context.Context, filter billing.ListFilter) ([]*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*billing.Invoice, 0)
	for _, inv := range s.invoices {
		if filter.Matches(inv) {
			result = append(result, inv.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	if filter.Limit <= 0 {
		return result, nil
	}
	start := filter.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + filter.Limit
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

func (s *Store) Create(_ context.Context, inv *billing.Invoice) (*billing.Invoice, bool, error) {
	if inv.NaturalKey == "" {
		return nil, false, fmt.Errorf("%w: natural key is required", billing.ErrValidation)
	}
	if err := inv.Period().Validate(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.byKey[inv.NaturalKey]; exists {
		return s.invoices[id].Clone(), false, nil
	}

	s.nextID++
	stored := inv.Clone()
	stored.ID = s.nextID
	stored.Status = billing.InvoiceStatusDraft
	stored.PeriodStart = stored.PeriodStart.UTC()
	stored.PeriodEnd = stored.PeriodEnd.UTC()
	stored.VoidedAt, stored.VoidedBy = nil, nil
	stored.FinalizedAt, stored.FinalizedBy = nil, nil
	if stored.Currency == "" {
		stored.Currency = "usd"
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	s.invoices[stored.ID] = stored
	s.byKey[stored.NaturalKey] = stored.ID
	return stored.Clone(), true, nil
}

func (s *Store) UpdateStatus(_ context.Context, id int64, expected billing.InvoiceStatus, t billing.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok || inv.Status != expected {
		return fmt.Errorf("invoice %d not in status %s: %w", id, expected, billing.ErrStatusConflict)
	}

	at := t.At.UTC()
	actor := t.Actor
	switch t.To {
	case billing.InvoiceStatusVoid:
		if inv.VoidedAt != nil {
			return fmt.Errorf("invoice %d already voided: %w", id, billing.ErrStatusConflict)
		}
		inv.VoidedAt, inv.VoidedBy = &at, &actor
	case billing.InvoiceStatusFinalized:
		if inv.FinalizedAt != nil {
			return fmt.Errorf("invoice %d already finalized: %w", id, billing.ErrStatusConflict)
		}
		inv.FinalizedAt, inv.FinalizedBy = &at, &actor
	default:
		return fmt.Errorf("%w: unsupported target status %q", billing.ErrValidation, t.To)
	}
	inv.Status = t.To
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
