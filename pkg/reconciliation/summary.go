package reconciliation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/invoicegate/pkg/billing"
)

// PeriodCounts tallies verdicts across a tenant's invoices for one period
type PeriodCounts struct {
	Total             int `json:"total"`
	OK                int `json:"ok"`
	Drift             int `json:"drift"`
	ExportUnavailable int `json:"exportUnavailable"`
	SkippedVoid       int `json:"skippedVoid"`
	HighRisk          int `json:"highRisk"`
}

// DriftRow is the compact per-invoice line of a period summary
type DriftRow struct {
	InvoiceID             int64                 `json:"invoiceId"`
	PlanType              string                `json:"planType"`
	Status                billing.InvoiceStatus `json:"status"`
	Verdict               Verdict               `json:"verdict"`
	TokensDelta           *decimal.Decimal      `json:"tokensDelta,omitempty"`
	CostDelta             *decimal.Decimal      `json:"costDelta,omitempty"`
	GovernanceEventsDelta *decimal.Decimal      `json:"governanceEventsDelta,omitempty"`
	HighRiskDrift         bool                  `json:"highRiskDrift"`
}

// PeriodSummary is the reconciliation summary for one tenant and period
type PeriodSummary struct {
	TenantID string         `json:"tenantId"`
	Period   billing.Period `json:"period"`
	Counts   PeriodCounts   `json:"counts"`
	Invoices []DriftRow     `json:"invoices"`
}

// Summarizer builds per-tenant period summaries from engine results
type Summarizer struct {
	store  billing.InvoiceStore
	engine *Engine
}

// NewSummarizer creates a summarizer
func NewSummarizer(store billing.InvoiceStore, engine *Engine) *Summarizer {
	return &Summarizer{store: store, engine: engine}
}

// Summarize reconciles every invoice of the tenant in exactly this period.
// Export outages are counted, not returned; only a store listing fault fails.
func (s *Summarizer) Summarize(ctx context.Context, tenantID string, period billing.Period) (*PeriodSummary, error) {
	invoices, err := s.store.List(ctx, billing.ListFilter{TenantID: tenantID, Period: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for tenant %s: %w", tenantID, err)
	}

	summary := &PeriodSummary{
		TenantID: tenantID,
		Period:   period,
		Invoices: make([]DriftRow, 0, len(invoices)),
	}

	for _, inv := range invoices {
		report := s.engine.EvaluateInvoice(ctx, inv)
		summary.Counts.add(report)
		summary.Invoices = append(summary.Invoices, rowFor(inv, report))
	}
	return summary, nil
}

func (c *PeriodCounts) add(report *DriftReport) {
	c.Total++
	switch report.Verdict {
	case VerdictOK:
		c.OK++
	case VerdictDrift:
		c.Drift++
	case VerdictExportUnavailable:
		c.ExportUnavailable++
	case VerdictSkippedVoid:
		c.SkippedVoid++
	}
	if report.HighRiskDrift {
		c.HighRisk++
	}
}

func rowFor(inv *billing.Invoice, report *DriftReport) DriftRow {
	row := DriftRow{
		InvoiceID:     inv.ID,
		PlanType:      inv.PlanType,
		Status:        inv.Status,
		Verdict:       report.Verdict,
		HighRiskDrift: report.HighRiskDrift,
	}
	if report.Tokens != nil {
		row.TokensDelta = &report.Tokens.Delta
	}
	if report.Cost != nil {
		row.CostDelta = &report.Cost.Delta
	}
	if report.GovernanceEvents != nil {
		row.GovernanceEventsDelta = &report.GovernanceEvents.Delta
	}
	return row
}
