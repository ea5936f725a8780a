package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/observability"
)

const invoiceColumns = `id, natural_key, tenant_id, plan_type, period_start, period_end, currency,
		       total_tokens, total_cost, governance_events, status, payment_metadata,
		       voided_at, voided_by, finalized_at, finalized_by, created_at`

// Store implements billing.InvoiceStore on database/sql
type Store struct {
	db      *sql.DB
	dialect Dialect
	metrics *observability.Metrics
	now     func() time.Time
}

// New wraps an open database handle. metrics may be nil.
func New(db *sql.DB, dialect Dialect, metrics *observability.Metrics) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		metrics: metrics,
		now:     time.Now,
	}
}

// DB returns the underlying handle (used by health checks)
func (s *Store) DB() *sql.DB {
	return s.db
}

// Get retrieves an invoice by ID
func (s *Store) Get(ctx context.Context, id int64) (inv *billing.Invoice, err error) {
	defer s.observe("get", time.Now(), &err)

	query := s.dialect.rebind(`SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`)
	inv, err = scanInvoice(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d: %w", id, billing.ErrInvoiceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// List returns invoices matching the filter ordered by id
func (s *Store) List(ctx context.Context, filter billing.ListFilter) (invoices []*billing.Invoice, err error) {
	defer s.observe("list", time.Now(), &err)

	var (
		where []string
		args  []any
	)
	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Period != nil {
		where = append(where, "period_start = ?", "period_end = ?")
		args = append(args, filter.Period.Start.UTC(), filter.Period.End.UTC())
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, filter.AfterID)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices = make([]*billing.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}
	return invoices, nil
}

// Create inserts a draft invoice, idempotent on natural key
func (s *Store) Create(ctx context.Context, inv *billing.Invoice) (out *billing.Invoice, created bool, err error) {
	defer s.observe("create", time.Now(), &err)

	if inv.NaturalKey == "" {
		return nil, false, fmt.Errorf("%w: natural key is required", billing.ErrValidation)
	}
	if err := inv.Period().Validate(); err != nil {
		return nil, false, err
	}

	var metadata any
	if len(inv.PaymentMetadata) > 0 {
		raw, err := json.Marshal(inv.PaymentMetadata)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal payment metadata: %w", err)
		}
		metadata = string(raw)
	}
	currency := inv.Currency
	if currency == "" {
		currency = "usd"
	}
	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query := s.dialect.rebind(`
		INSERT INTO invoices (natural_key, tenant_id, plan_type, period_start, period_end, currency,
		                      total_tokens, total_cost, governance_events, status, payment_metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (natural_key) DO NOTHING
	`)
	res, err := s.db.ExecContext(ctx, query,
		inv.NaturalKey, inv.TenantID, inv.PlanType, inv.PeriodStart.UTC(), inv.PeriodEnd.UTC(), currency,
		inv.TotalTokens, inv.TotalCost.String(), inv.GovernanceEvents, string(billing.InvoiceStatusDraft),
		metadata, createdAt.UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create invoice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}

	out, err = s.getByNaturalKey(ctx, inv.NaturalKey)
	if err != nil {
		return nil, false, err
	}
	return out, affected == 1, nil
}

func (s *Store) getByNaturalKey(ctx context.Context, key string) (*billing.Invoice, error) {
	query := s.dialect.rebind(`SELECT ` + invoiceColumns + ` FROM invoices WHERE natural_key = ?`)
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %q: %w", key, billing.ErrInvoiceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice by natural key: %w", err)
	}
	return inv, nil
}

// UpdateStatus performs a compare-and-swap on status and stamps the audit pair
func (s *Store) UpdateStatus(ctx context.Context, id int64, expected billing.InvoiceStatus, t billing.Transition) (err error) {
	defer s.observe("update_status", time.Now(), &err)

	var query string
	switch t.To {
	case billing.InvoiceStatusVoid:
		query = `UPDATE invoices SET status = ?, voided_at = ?, voided_by = ?
		         WHERE id = ? AND status = ? AND voided_at IS NULL`
	case billing.InvoiceStatusFinalized:
		query = `UPDATE invoices SET status = ?, finalized_at = ?, finalized_by = ?
		         WHERE id = ? AND status = ? AND finalized_at IS NULL`
	default:
		return fmt.Errorf("%w: unsupported target status %q", billing.ErrValidation, t.To)
	}

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query),
		string(t.To), t.At.UTC(), t.Actor, id, string(expected))
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invoice %d not in status %s: %w", id, expected, billing.ErrStatusConflict)
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) observe(op string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	// A missing row or a lost CAS is an answer, not a storage fault.
	if errors.Is(err, billing.ErrInvoiceNotFound) || errors.Is(err, billing.ErrStatusConflict) {
		err = nil
	}
	s.metrics.RecordStorageOperation(op, string(s.dialect), time.Since(start), err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*billing.Invoice, error) {
	inv := &billing.Invoice{}
	var (
		status       string
		metadataJSON []byte
		voidedAt     sql.NullTime
		voidedBy     sql.NullString
		finalizedAt  sql.NullTime
		finalizedBy  sql.NullString
	)
	err := row.Scan(
		&inv.ID, &inv.NaturalKey, &inv.TenantID, &inv.PlanType, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.Currency, &inv.TotalTokens, &inv.TotalCost, &inv.GovernanceEvents, &status,
		&metadataJSON, &voidedAt, &voidedBy, &finalizedAt, &finalizedBy, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = billing.InvoiceStatus(status)
	inv.PeriodStart = inv.PeriodStart.UTC()
	inv.PeriodEnd = inv.PeriodEnd.UTC()
	if voidedAt.Valid {
		t := voidedAt.Time.UTC()
		inv.VoidedAt = &t
	}
	if voidedBy.Valid {
		inv.VoidedBy = &voidedBy.String
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time.UTC()
		inv.FinalizedAt = &t
	}
	if finalizedBy.Valid {
		inv.FinalizedBy = &finalizedBy.String
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &inv.PaymentMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment metadata: %w", err)
		}
	}
	return inv, nil
}
