package reconciliation

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/observability"
)

// gatePageSize is how many invoices the gate loads per store call
const gatePageSize = 200

// BlockingIssue is one reason an invoice blocks charging
type BlockingIssue struct {
	InvoiceID int64  `json:"invoiceId,omitempty"`
	TenantID  string `json:"tenantId,omitempty"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
}

// Readiness is the advisory ready-to-charge verdict for a period
type Readiness struct {
	Ready          bool            `json:"ready"`
	Period         billing.Period  `json:"period"`
	Evaluated      int             `json:"evaluated"`
	BlockingIssues []BlockingIssue `json:"blockingIssues"`
}

// Gate aggregates engine results over a period. It never writes and is not an
// authorization check.
type Gate struct {
	store   billing.InvoiceStore
	engine  *Engine
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewGate creates a readiness gate
func NewGate(store billing.InvoiceStore, engine *Engine, metrics *observability.Metrics) *Gate {
	return &Gate{
		store:   store,
		engine:  engine,
		metrics: metrics,
		tracer:  observability.Tracer(),
	}
}

// Assess evaluates every non-void invoice in exactly this period, one at a
// time. It never returns an error: a store fault yields Ready=false with a
// SYSTEM_ERROR issue.
func (g *Gate) Assess(ctx context.Context, period billing.Period) *Readiness {
	ctx, span := g.tracer.Start(ctx, "reconciliation.Assess",
		trace.WithAttributes(attribute.String("billing.period", period.String())))
	defer span.End()

	result := &Readiness{
		Ready:          true,
		Period:         period,
		BlockingIssues: make([]BlockingIssue, 0),
	}

	filter := billing.ListFilter{
		Period:   &period,
		Statuses: []billing.InvoiceStatus{billing.InvoiceStatusDraft, billing.InvoiceStatusFinalized},
		Limit:    gatePageSize,
	}

	for {
		page, err := g.store.List(ctx, filter)
		if err != nil {
			span.RecordError(err)
			observability.FromContext(ctx).WithError(err).
				WithField("period", period.String()).
				Error("Readiness assessment failed to list invoices")
			result.Ready = false
			result.BlockingIssues = append(result.BlockingIssues, BlockingIssue{
				Reason: ReasonSystemError,
				Detail: "failed to list invoices for period",
			})
			break
		}

		for _, inv := range page {
			report := g.engine.EvaluateInvoice(ctx, inv)
			result.Evaluated++
			if !report.Blocking() {
				continue
			}
			result.Ready = false
			result.BlockingIssues = append(result.BlockingIssues, issuesFor(report)...)
		}

		// keyset paging: voids between pages must not shift unseen rows
		if len(page) < filter.Limit {
			break
		}
		filter.AfterID = page[len(page)-1].ID
	}

	span.SetAttributes(
		attribute.Bool("readiness.ready", result.Ready),
		attribute.Int("readiness.evaluated", result.Evaluated),
		attribute.Int("readiness.blocking_issues", len(result.BlockingIssues)),
	)
	g.metrics.RecordReadiness(result.Ready)
	return result
}

func issuesFor(report *DriftReport) []BlockingIssue {
	reasons := report.Reasons()
	details := report.Details()
	issues := make([]BlockingIssue, 0, len(reasons))
	for i, reason := range reasons {
		issue := BlockingIssue{
			InvoiceID: report.InvoiceID,
			TenantID:  report.TenantID,
			Reason:    reason,
		}
		if i < len(details) {
			issue.Detail = details[i]
		} else {
			issue.Detail = strings.ToLower(reason)
		}
		issues = append(issues, issue)
	}
	return issues
}
