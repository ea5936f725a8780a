package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/invoicegate/pkg/billing"
)

// Verdict classifies one reconciliation
type Verdict string

const (
	VerdictOK                Verdict = "OK"
	VerdictDrift             Verdict = "DRIFT"
	VerdictExportUnavailable Verdict = "EXPORT_UNAVAILABLE"
	VerdictSkippedVoid       Verdict = "SKIPPED_VOID"
)

// Blocking reasons, one per mismatched field or failure
const (
	ReasonTokensMismatch           = "TOKENS_MISMATCH"
	ReasonCostMismatch             = "COST_MISMATCH"
	ReasonGovernanceEventsMismatch = "GOVERNANCE_EVENTS_MISMATCH"
	ReasonExportUnavailable        = "EXPORT_UNAVAILABLE"
	ReasonSystemError              = "SYSTEM_ERROR"
)

// UnavailableReason values for EXPORT_UNAVAILABLE verdicts
const (
	UnavailableTimeout   = "timeout"
	UnavailableTransport = "transport"
	UnavailableBadStatus = "bad_status"
	UnavailableMalformed = "malformed"
	UnavailableOther     = "unavailable"
)

// FieldDelta compares one recorded total against the export
type FieldDelta struct {
	Invoice  decimal.Decimal `json:"invoice"`
	Export   decimal.Decimal `json:"export"`
	Delta    decimal.Decimal `json:"delta"`
	DeltaPct decimal.Decimal `json:"deltaPct"`
	Mismatch bool            `json:"mismatch"`
}

// DriftReport is the result of evaluating one invoice. Field deltas are nil
// when no export was compared (SKIPPED_VOID, EXPORT_UNAVAILABLE).
type DriftReport struct {
	InvoiceID                int64                 `json:"invoiceId"`
	TenantID                 string                `json:"tenantId"`
	Period                   billing.Period        `json:"period"`
	Status                   billing.InvoiceStatus `json:"status"`
	Verdict                  Verdict               `json:"verdict"`
	Tokens                   *FieldDelta           `json:"tokens,omitempty"`
	Cost                     *FieldDelta           `json:"cost,omitempty"`
	GovernanceEvents         *FieldDelta           `json:"governanceEvents,omitempty"`
	TokensMismatch           bool                  `json:"tokensMismatch"`
	CostMismatch             bool                  `json:"costMismatch"`
	GovernanceEventsMismatch bool                  `json:"governanceEventsMismatch"`
	HighRiskDrift            bool                  `json:"highRiskDrift"`
	UnavailableReason        string                `json:"unavailableReason,omitempty"`
	EvaluatedAt              time.Time             `json:"evaluatedAt"`
}

// OK reports whether the invoice may be finalized
func (r *DriftReport) OK() bool {
	return r.Verdict == VerdictOK
}

// Blocking reports whether the report blocks charging for its period
func (r *DriftReport) Blocking() bool {
	return r.Verdict == VerdictDrift || r.Verdict == VerdictExportUnavailable
}

// Reasons lists one reason per distinct failure, in field order
func (r *DriftReport) Reasons() []string {
	switch r.Verdict {
	case VerdictExportUnavailable:
		return []string{ReasonExportUnavailable}
	case VerdictDrift:
		var reasons []string
		if r.TokensMismatch {
			reasons = append(reasons, ReasonTokensMismatch)
		}
		if r.CostMismatch {
			reasons = append(reasons, ReasonCostMismatch)
		}
		if r.GovernanceEventsMismatch {
			reasons = append(reasons, ReasonGovernanceEventsMismatch)
		}
		return reasons
	}
	return nil
}

// Details describes each failure for operators, e.g.
// "tokens mismatch: invoice 1001, export 1000 (delta 1, 0.1%)"
func (r *DriftReport) Details() []string {
	switch r.Verdict {
	case VerdictExportUnavailable:
		if r.UnavailableReason != "" {
			return []string{"export unavailable: " + r.UnavailableReason}
		}
		return []string{"export unavailable"}
	case VerdictSkippedVoid:
		return []string{"invoice is void"}
	case VerdictDrift:
		var details []string
		for _, f := range []struct {
			name  string
			delta *FieldDelta
		}{
			{"tokens", r.Tokens},
			{"cost", r.Cost},
			{"governance events", r.GovernanceEvents},
		} {
			if f.delta != nil && f.delta.Mismatch {
				details = append(details, f.delta.describe(f.name))
			}
		}
		return details
	}
	return nil
}

func (d *FieldDelta) describe(name string) string {
	return name + " mismatch: invoice " + d.Invoice.String() +
		", export " + d.Export.String() +
		" (delta " + d.Delta.String() + ", " + d.DeltaPct.String() + "%)"
}
