// Package usage fetches authoritative usage totals for a tenant and billing
// period from the external usage export service.
//
// Snapshots are computed fresh on every call and are never cached. Any failure
// to obtain one (transport error, timeout, non-2xx status, malformed or missing
// data) is reported as ErrExportUnavailable so callers can fold it into a
// verdict instead of failing.
package usage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/invoicegate/pkg/billing"
)

// ErrExportUnavailable is returned whenever a usage snapshot could not be obtained
var ErrExportUnavailable = errors.New("usage export unavailable")

// Failure kinds wrapped alongside ErrExportUnavailable
var (
	ErrExportTransport = errors.New("transport failure")
	ErrExportStatus    = errors.New("unexpected status")
	ErrExportMalformed = errors.New("malformed response")
)

// Snapshot holds recomputed usage totals for one tenant and period
type Snapshot struct {
	TenantID              string          `json:"tenantId"`
	Period                billing.Period  `json:"period"`
	TotalTokens           int64           `json:"totalTokens"`
	TotalCost             decimal.Decimal `json:"totalCost"`
	TotalGovernanceEvents int64           `json:"totalGovernanceEvents"`
}

// Client fetches a usage snapshot
type Client interface {
	FetchUsage(ctx context.Context, tenantID string, period billing.Period) (*Snapshot, error)
}

// ClientFunc adapts a function to Client
type ClientFunc func(ctx context.Context, tenantID string, period billing.Period) (*Snapshot, error)

func (f ClientFunc) FetchUsage(ctx context.Context, tenantID string, period billing.Period) (*Snapshot, error) {
	return f(ctx, tenantID, period)
}
