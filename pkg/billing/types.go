package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusFinalized InvoiceStatus = "finalized"
	InvoiceStatusVoid      InvoiceStatus = "void"
)

// Valid reports whether s is a known status
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusFinalized, InvoiceStatusVoid:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusFinalized || s == InvoiceStatusVoid
}

// Invoice is one billing record per (tenant, period, plan).
//
// The recorded totals are written once at creation and never touched by a
// lifecycle operation. The audit pairs are set exactly once.
type Invoice struct {
	ID               int64           `json:"id"`
	NaturalKey       string          `json:"naturalKey"`
	TenantID         string          `json:"tenantId"`
	PlanType         string          `json:"planType"`
	PeriodStart      time.Time       `json:"periodStart"`
	PeriodEnd        time.Time       `json:"periodEnd"`
	Currency         string          `json:"currency"`
	TotalTokens      int64           `json:"totalTokens"`
	TotalCost        decimal.Decimal `json:"totalCost"`
	GovernanceEvents int64           `json:"governanceEvents"`
	Status           InvoiceStatus   `json:"status"`
	PaymentMetadata  map[string]any  `json:"paymentMetadata,omitempty"`
	VoidedAt         *time.Time      `json:"voidedAt"`
	VoidedBy         *string         `json:"voidedBy"`
	FinalizedAt      *time.Time      `json:"finalizedAt"`
	FinalizedBy      *string         `json:"finalizedBy"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Period returns the billing period the invoice covers
func (i *Invoice) Period() Period {
	return Period{Start: i.PeriodStart, End: i.PeriodEnd}
}

// Clone returns a deep copy so callers can't mutate a stored record
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	if i.PaymentMetadata != nil {
		c.PaymentMetadata = make(map[string]any, len(i.PaymentMetadata))
		for k, v := range i.PaymentMetadata {
			c.PaymentMetadata[k] = v
		}
	}
	c.VoidedAt = cloneTime(i.VoidedAt)
	c.VoidedBy = cloneString(i.VoidedBy)
	c.FinalizedAt = cloneTime(i.FinalizedAt)
	c.FinalizedBy = cloneString(i.FinalizedBy)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Period is a billing period. Start and End are an opaque exact-match key:
// two periods are the same only if both instants are equal.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod builds a period normalized to UTC
func NewPeriod(start, end time.Time) Period {
	return Period{Start: start.UTC(), End: end.UTC()}
}

// Validate checks that the period has both bounds and a positive length
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: period start and end are required", ErrValidation)
	}
	if !p.End.After(p.Start) {
		return fmt.Errorf("%w: period end %s must be after start %s",
			ErrValidation, p.End.Format(time.RFC3339), p.Start.Format(time.RFC3339))
	}
	return nil
}

// Equal reports whether both bounds match exactly
func (p Period) Equal(other Period) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}

func (p Period) String() string {
	return p.Start.Format(time.RFC3339) + "/" + p.End.Format(time.RFC3339)
}

// Transition describes one status change and the audit pair it stamps
type Transition struct {
	To    InvoiceStatus
	At    time.Time
	Actor string
}

// ListFilter selects invoices for List. Zero-valued fields don't filter.
type ListFilter struct {
	TenantID string
	Period   *Period
	Statuses []InvoiceStatus
	// AfterID keeps only ids greater than it, for keyset paging
	AfterID int64
	Limit   int
	Offset  int
}

// Matches reports whether inv passes the filter (ignoring paging)
func (f ListFilter) Matches(inv *Invoice) bool {
	if f.TenantID != "" && inv.TenantID != f.TenantID {
		return false
	}
	if f.Period != nil && !f.Period.Equal(inv.Period()) {
		return false
	}
	if f.AfterID > 0 && inv.ID <= f.AfterID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if inv.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
