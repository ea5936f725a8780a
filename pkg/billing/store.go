package billing

import "context"

// InvoiceStore is the persistence port for invoices. It is the only
// component that performs writes.
type InvoiceStore interface {
	// Get returns ErrInvoiceNotFound when the id is unknown.
	Get(ctx context.Context, id int64) (*Invoice, error)

	// List returns invoices matching the filter ordered by id.
	List(ctx context.Context, filter ListFilter) ([]*Invoice, error)

	// Create inserts a draft invoice. Creation is idempotent on NaturalKey:
	// a second call with the same key returns the existing row and false.
	Create(ctx context.Context, inv *Invoice) (*Invoice, bool, error)

	// UpdateStatus moves the invoice from expected to t.To and stamps the
	// matching audit pair in a single conditional write. It returns
	// ErrStatusConflict if the row was no longer in expected.
	UpdateStatus(ctx context.Context, id int64, expected InvoiceStatus, t Transition) error

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
