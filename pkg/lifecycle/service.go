// Package lifecycle enforces the invoice state machine.
//
//	draft ──void──────▶ void       (terminal)
//	draft ──finalize──▶ finalized  (terminal, requires an OK reconciliation)
//
// Every rejection is a *billing.TransitionError naming the invoice and the
// violated precondition. The status write is a compare-and-swap on the draft
// status, so of two concurrent callers at most one succeeds.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/observability"
	"github.com/platinummonkey/invoicegate/pkg/reconciliation"
)

const (
	opVoid     = "void"
	opFinalize = "finalize"
)

// Evaluator reconciles a loaded invoice; *reconciliation.Engine satisfies it
type Evaluator interface {
	EvaluateInvoice(ctx context.Context, inv *billing.Invoice) *reconciliation.DriftReport
}

// Service performs void and finalize transitions
type Service struct {
	store   billing.InvoiceStore
	engine  Evaluator
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService creates a lifecycle service. logger and metrics may be nil.
func NewService(store billing.InvoiceStore, engine Evaluator, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		store:   store,
		engine:  engine,
		logger:  logger,
		metrics: metrics,
		tracer:  observability.Tracer(),
		now:     time.Now,
	}
}

// Void cancels a draft invoice. It makes no external calls.
func (s *Service) Void(ctx context.Context, id int64, actor string) (inv *billing.Invoice, err error) {
	ctx, span := s.startSpan(ctx, opVoid, id, actor)
	defer func() { s.end(ctx, span, opVoid, id, actor, err) }()

	current, err := s.loadDraft(ctx, opVoid, id, actor)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, opVoid, current, billing.InvoiceStatusVoid, actor)
}

// Finalize marks a draft invoice ready for payment once its reconciliation
// verdict is OK. Any other verdict leaves it in draft.
func (s *Service) Finalize(ctx context.Context, id int64, actor string) (inv *billing.Invoice, err error) {
	ctx, span := s.startSpan(ctx, opFinalize, id, actor)
	defer func() { s.end(ctx, span, opFinalize, id, actor, err) }()

	current, err := s.loadDraft(ctx, opFinalize, id, actor)
	if err != nil {
		return nil, err
	}

	report := s.engine.EvaluateInvoice(ctx, current)
	span.SetAttributes(attribute.String("reconciliation.verdict", string(report.Verdict)))
	if !report.OK() {
		details := append([]string{"verdict " + string(report.Verdict)}, report.Details()...)
		return nil, &billing.TransitionError{
			InvoiceID: id,
			Op:        opFinalize,
			From:      current.Status,
			Reason:    billing.ReasonReconciliationNot,
			Details:   details,
		}
	}

	return s.commit(ctx, opFinalize, current, billing.InvoiceStatusFinalized, actor)
}

func (s *Service) loadDraft(ctx context.Context, op string, id int64, actor string) (*billing.Invoice, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, &billing.TransitionError{
			InvoiceID: id,
			Op:        op,
			Reason:    billing.ReasonMissingActor,
			Details:   []string{"actor is required"},
		}
	}

	inv, err := s.store.Get(ctx, id)
	if err != nil {
		if billing.IsNotFound(err) {
			return nil, &billing.TransitionError{InvoiceID: id, Op: op, Reason: billing.ReasonNotFound}
		}
		return nil, &billing.TransitionError{InvoiceID: id, Op: op, Reason: billing.ReasonStoreFailure, Err: err}
	}

	if inv.Status != billing.InvoiceStatusDraft {
		return nil, &billing.TransitionError{
			InvoiceID: id,
			Op:        op,
			From:      inv.Status,
			Reason:    billing.ReasonWrongSourceState,
			Details:   []string{"only draft invoices can be " + pastTense(op)},
		}
	}
	return inv, nil
}

// commit performs the conditional write; a lost race reads as a state rejection
func (s *Service) commit(ctx context.Context, op string, current *billing.Invoice, to billing.InvoiceStatus, actor string) (*billing.Invoice, error) {
	t := billing.Transition{To: to, At: s.now().UTC(), Actor: strings.TrimSpace(actor)}

	if err := s.store.UpdateStatus(ctx, current.ID, billing.InvoiceStatusDraft, t); err != nil {
		if errors.Is(err, billing.ErrStatusConflict) {
			return nil, &billing.TransitionError{
				InvoiceID: current.ID,
				Op:        op,
				From:      current.Status,
				Reason:    billing.ReasonConcurrentChange,
				Details:   []string{"invoice left draft before the write"},
			}
		}
		return nil, &billing.TransitionError{InvoiceID: current.ID, Op: op, From: current.Status, Reason: billing.ReasonStoreFailure, Err: err}
	}

	updated := current.Clone()
	updated.Status = to
	at, by := t.At, t.Actor
	switch to {
	case billing.InvoiceStatusVoid:
		updated.VoidedAt, updated.VoidedBy = &at, &by
	case billing.InvoiceStatusFinalized:
		updated.FinalizedAt, updated.FinalizedBy = &at, &by
	}
	return updated, nil
}

func (s *Service) startSpan(ctx context.Context, op string, id int64, actor string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(
		attribute.Int64("invoice.id", id),
		attribute.String("lifecycle.actor", actor),
	))
}

func (s *Service) end(ctx context.Context, span trace.Span, op string, id int64, actor string, err error) {
	defer span.End()

	logger := observability.UpdateLoggerWithTraceContext(ctx, s.logger).WithFields(map[string]interface{}{
		"invoice_id": id,
		"operation":  op,
		"actor":      actor,
	})
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}

	if err == nil {
		s.metrics.RecordTransition(op, "success")
		logger.Info("Invoice transition committed")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var te *billing.TransitionError
	if errors.As(err, &te) && te.Reason != billing.ReasonStoreFailure {
		s.metrics.RecordTransition(op, strings.ToLower(te.Reason))
		logger.WithField("reason", te.Reason).WithError(err).Warn("Invoice transition rejected")
		return
	}
	s.metrics.RecordTransition(op, "store_failure")
	logger.WithError(err).Error("Invoice transition failed")
}

func pastTense(op string) string {
	if op == opVoid {
		return "voided"
	}
	return "finalized"
}
