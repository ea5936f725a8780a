package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/observability"
	"github.com/platinummonkey/invoicegate/pkg/usage"
)

// DefaultExportTimeout bounds a single usage export fetch
const DefaultExportTimeout = 10 * time.Second

var hundred = decimal.NewFromInt(100)

// Tolerance is the largest absolute delta per field that still counts as a match.
// These are billing policy values.
type Tolerance struct {
	Tokens           decimal.Decimal
	Cost             decimal.Decimal
	GovernanceEvents decimal.Decimal
}

// DefaultTolerance requires exact counts and allows one hundredth of a currency unit on cost
var DefaultTolerance = Tolerance{
	Tokens:           decimal.Zero,
	Cost:             decimal.New(1, -2),
	GovernanceEvents: decimal.Zero,
}

// EngineConfig configures an Engine. Zero values fall back to defaults.
type EngineConfig struct {
	Tolerance     *Tolerance
	ExportTimeout time.Duration
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Now           func() time.Time
}

// Engine compares stored invoices against fresh usage exports
type Engine struct {
	store         billing.InvoiceStore
	client        usage.Client
	tolerance     Tolerance
	exportTimeout time.Duration
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracer        trace.Tracer
	now           func() time.Time
}

// NewEngine creates a reconciliation engine
func NewEngine(store billing.InvoiceStore, client usage.Client, cfg EngineConfig) *Engine {
	e := &Engine{
		store:         store,
		client:        client,
		tolerance:     DefaultTolerance,
		exportTimeout: cfg.ExportTimeout,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        observability.Tracer(),
		now:           cfg.Now,
	}
	if cfg.Tolerance != nil {
		e.tolerance = *cfg.Tolerance
	}
	if e.exportTimeout <= 0 {
		e.exportTimeout = DefaultExportTimeout
	}
	if e.logger == nil {
		e.logger = observability.NopLogger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Evaluate loads the invoice and reconciles it. The only errors are a missing
// invoice and a store read fault; export failures become a verdict.
func (e *Engine) Evaluate(ctx context.Context, invoiceID int64) (*DriftReport, error) {
	inv, err := e.store.Get(ctx, invoiceID)
	if err != nil {
		if billing.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load invoice %d: %w", invoiceID, err)
	}
	return e.EvaluateInvoice(ctx, inv), nil
}

// EvaluateInvoice reconciles an already loaded invoice. It never fails.
func (e *Engine) EvaluateInvoice(ctx context.Context, inv *billing.Invoice) *DriftReport {
	ctx, span := e.tracer.Start(ctx, "reconciliation.Evaluate",
		trace.WithAttributes(
			attribute.Int64("invoice.id", inv.ID),
			attribute.String("invoice.tenant_id", inv.TenantID),
			attribute.String("invoice.status", string(inv.Status)),
		))
	defer span.End()

	report := &DriftReport{
		InvoiceID:   inv.ID,
		TenantID:    inv.TenantID,
		Period:      inv.Period(),
		Status:      inv.Status,
		EvaluatedAt: e.now().UTC(),
	}

	if inv.Status == billing.InvoiceStatusVoid {
		report.Verdict = VerdictSkippedVoid
		return e.finish(span, report)
	}

	snapshot, err := e.fetch(ctx, inv)
	if err != nil {
		report.Verdict = VerdictExportUnavailable
		report.HighRiskDrift = true
		report.UnavailableReason = unavailableReason(err)
		span.RecordError(err)
		e.log(ctx).WithError(err).WithFields(map[string]interface{}{
			"invoice_id": inv.ID,
			"tenant_id":  inv.TenantID,
			"period":     inv.Period().String(),
		}).Warn("Usage export unavailable")
		return e.finish(span, report)
	}

	report.Tokens = compare(decimal.NewFromInt(inv.TotalTokens), decimal.NewFromInt(snapshot.TotalTokens), e.tolerance.Tokens)
	report.Cost = compare(inv.TotalCost, snapshot.TotalCost, e.tolerance.Cost)
	report.GovernanceEvents = compare(decimal.NewFromInt(inv.GovernanceEvents), decimal.NewFromInt(snapshot.TotalGovernanceEvents), e.tolerance.GovernanceEvents)

	report.TokensMismatch = report.Tokens.Mismatch
	report.CostMismatch = report.Cost.Mismatch
	report.GovernanceEventsMismatch = report.GovernanceEvents.Mismatch
	report.HighRiskDrift = report.TokensMismatch || report.CostMismatch || report.GovernanceEventsMismatch

	report.Verdict = VerdictOK
	if report.HighRiskDrift {
		report.Verdict = VerdictDrift
	}
	return e.finish(span, report)
}

func (e *Engine) fetch(ctx context.Context, inv *billing.Invoice) (*usage.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.exportTimeout)
	defer cancel()

	start := time.Now()
	snapshot, err := e.client.FetchUsage(ctx, inv.TenantID, inv.Period())
	if err == nil && snapshot == nil {
		err = fmt.Errorf("%w: %w: no data", usage.ErrExportUnavailable, usage.ErrExportMalformed)
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", err, ctx.Err())
	}

	outcome := "success"
	if err != nil {
		outcome = "unavailable"
	}
	e.metrics.RecordUsageExport(outcome, time.Since(start))
	return snapshot, err
}

// log prefers the request logger and falls back to the configured one
func (e *Engine) log(ctx context.Context) *observability.Logger {
	if _, ok := ctx.Value(observability.LoggerKey).(*observability.Logger); ok {
		return observability.FromContext(ctx)
	}
	return observability.UpdateLoggerWithTraceContext(ctx, e.logger)
}

func (e *Engine) finish(span trace.Span, report *DriftReport) *DriftReport {
	span.SetAttributes(
		attribute.String("reconciliation.verdict", string(report.Verdict)),
		attribute.Bool("reconciliation.high_risk", report.HighRiskDrift),
	)
	if report.Verdict != VerdictOK && report.Verdict != VerdictSkippedVoid {
		span.SetStatus(codes.Error, string(report.Verdict))
	}
	e.metrics.RecordReconciliation(string(report.Verdict))
	return report
}

// compare computes delta = invoice - export and its percentage of the export.
// A zero export baseline yields 100% for any nonzero delta and 0% otherwise.
func compare(invoice, export, tolerance decimal.Decimal) *FieldDelta {
	delta := invoice.Sub(export)

	var pct decimal.Decimal
	switch {
	case export.IsPositive():
		pct = delta.Div(export).Mul(hundred).Round(4)
	case !delta.IsZero():
		pct = hundred
	default:
		pct = decimal.Zero
	}

	return &FieldDelta{
		Invoice:  invoice,
		Export:   export,
		Delta:    delta,
		DeltaPct: pct,
		Mismatch: delta.Abs().GreaterThan(tolerance),
	}
}

// unavailableReason maps an export failure to a fixed public reason. The
// full error only goes to the log since it can carry internal URLs.
func unavailableReason(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return UnavailableTimeout
	case errors.Is(err, usage.ErrExportStatus):
		return UnavailableBadStatus
	case errors.Is(err, usage.ErrExportMalformed):
		return UnavailableMalformed
	case errors.Is(err, usage.ErrExportTransport):
		return UnavailableTransport
	default:
		return UnavailableOther
	}
}
