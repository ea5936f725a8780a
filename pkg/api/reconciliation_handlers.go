package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/httputil"
	"github.com/platinummonkey/invoicegate/pkg/observability"
	"github.com/platinummonkey/invoicegate/pkg/reconciliation"
)

// ReconciliationHandlers serves the read-only reconciliation endpoints.
// None of them return 5xx for a usage export outage.
type ReconciliationHandlers struct {
	engine     *reconciliation.Engine
	gate       *reconciliation.Gate
	summarizer *reconciliation.Summarizer
}

// NewReconciliationHandlers creates reconciliation handlers
func NewReconciliationHandlers(engine *reconciliation.Engine, gate *reconciliation.Gate, summarizer *reconciliation.Summarizer) *ReconciliationHandlers {
	return &ReconciliationHandlers{
		engine:     engine,
		gate:       gate,
		summarizer: summarizer,
	}
}

// RegisterRoutes registers reconciliation routes
func (h *ReconciliationHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/reconciliation/invoices/{id}", h.getDriftReport).Methods("GET")
	router.HandleFunc("/admin/reconciliation/tenants/{tenantId}/period", h.getPeriodSummary).Methods("GET")
	router.HandleFunc("/admin/reconciliation/ready-to-charge", h.getReadyToCharge).Methods("GET")
}

// getDriftReport handles GET /admin/reconciliation/invoices/{id}
func (h *ReconciliationHandlers) getDriftReport(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	report, err := h.engine.Evaluate(r.Context(), id)
	if err != nil {
		if billing.IsNotFound(err) {
			httputil.WriteNotFoundError(w, invoiceNotFound(id))
			return
		}
		observability.FromContext(r.Context()).WithError(err).WithField("invoice_id", id).
			Error("Failed to load invoice for reconciliation")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, report)
}

// getPeriodSummary handles GET /admin/reconciliation/tenants/{tenantId}/period
func (h *ReconciliationHandlers) getPeriodSummary(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenantId")
	if !ok {
		return
	}
	period, ok := requirePeriod(w, r)
	if !ok {
		return
	}

	summary, err := h.summarizer.Summarize(r.Context(), tenantID, period)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).WithField("tenant_id", tenantID).
			Error("Failed to summarize period")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, summary)
}

// getReadyToCharge handles GET /admin/reconciliation/ready-to-charge
func (h *ReconciliationHandlers) getReadyToCharge(w http.ResponseWriter, r *http.Request) {
	period, ok := requirePeriod(w, r)
	if !ok {
		return
	}

	httputil.WriteSuccess(w, h.gate.Assess(r.Context(), period))
}
