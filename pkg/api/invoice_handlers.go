package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/httputil"
	"github.com/platinummonkey/invoicegate/pkg/lifecycle"
	"github.com/platinummonkey/invoicegate/pkg/observability"
	"github.com/platinummonkey/invoicegate/pkg/usage"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// InvoiceHandlers serves invoice reads and the void/finalize writes
type InvoiceHandlers struct {
	store         billing.InvoiceStore
	usage         usage.Client
	lifecycle     *lifecycle.Service
	exportTimeout time.Duration
}

// NewInvoiceHandlers creates invoice handlers
func NewInvoiceHandlers(store billing.InvoiceStore, client usage.Client, svc *lifecycle.Service, exportTimeout time.Duration) *InvoiceHandlers {
	return &InvoiceHandlers{
		store:         store,
		usage:         client,
		lifecycle:     svc,
		exportTimeout: exportTimeout,
	}
}

// RegisterRoutes registers invoice routes
func (h *InvoiceHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/invoices", h.listDraftInvoices).Methods("GET")
	router.HandleFunc("/admin/invoices/{id}", h.getInvoice).Methods("GET")
	router.HandleFunc("/admin/invoices/{id}/void", h.voidInvoice).Methods("POST")
	router.HandleFunc("/admin/invoices/{id}/finalize", h.finalizeInvoice).Methods("POST")
}

// listDraftInvoices handles GET /admin/invoices
func (h *InvoiceHandlers) listDraftInvoices(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryIntInRange(r, "limit", defaultListLimit, 1, maxListLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if offset < 0 {
		httputil.WriteBadRequest(w, "query param offset must be >= 0")
		return
	}
	period, ok := optionalPeriod(w, r)
	if !ok {
		return
	}

	invoices, err := h.store.List(r.Context(), billing.ListFilter{
		TenantID: r.URL.Query().Get("tenantId"),
		Period:   period,
		Statuses: []billing.InvoiceStatus{billing.InvoiceStatusDraft},
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to list draft invoices")
		httputil.WriteInternalError(w)
		return
	}
	if invoices == nil {
		invoices = []*billing.Invoice{}
	}

	httputil.WriteSuccess(w, invoices)
}

// getInvoice handles GET /admin/invoices/{id}
func (h *InvoiceHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	inv, err := h.store.Get(r.Context(), id)
	if err != nil {
		if billing.IsNotFound(err) {
			httputil.WriteNotFoundError(w, invoiceNotFound(id))
			return
		}
		observability.FromContext(r.Context()).WithError(err).WithField("invoice_id", id).Error("Failed to load invoice")
		httputil.WriteInternalError(w)
		return
	}

	detail := InvoiceDetail{Invoice: inv, ExportStatus: ExportIncomplete}

	ctx, cancel := context.WithTimeout(r.Context(), h.exportTimeout)
	defer cancel()
	snapshot, err := h.usage.FetchUsage(ctx, inv.TenantID, inv.Period())
	if err != nil || snapshot == nil {
		observability.FromContext(r.Context()).WithError(err).WithField("invoice_id", id).
			Warn("Usage export unavailable for invoice detail")
	} else {
		detail.Export = snapshot
		detail.ExportStatus = ExportComplete
	}

	httputil.WriteSuccess(w, detail)
}

// voidInvoice handles POST /admin/invoices/{id}/void
func (h *InvoiceHandlers) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, actor, ctx, ok := parseTransitionRequest(w, r)
	if !ok {
		return
	}

	inv, err := h.lifecycle.Void(ctx, id, actor)
	if err != nil {
		writeTransitionError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, VoidResponse{
		ID:       inv.ID,
		Status:   inv.Status,
		VoidedAt: inv.VoidedAt,
		VoidedBy: inv.VoidedBy,
	})
}

// finalizeInvoice handles POST /admin/invoices/{id}/finalize
func (h *InvoiceHandlers) finalizeInvoice(w http.ResponseWriter, r *http.Request) {
	id, actor, ctx, ok := parseTransitionRequest(w, r)
	if !ok {
		return
	}

	inv, err := h.lifecycle.Finalize(ctx, id, actor)
	if err != nil {
		writeTransitionError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, FinalizeResponse{
		ID:          inv.ID,
		Status:      inv.Status,
		FinalizedAt: inv.FinalizedAt,
		FinalizedBy: inv.FinalizedBy,
	})
}

func parseTransitionRequest(w http.ResponseWriter, r *http.Request) (int64, string, context.Context, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return 0, "", nil, false
	}
	actor, ok := httputil.RequireHeader(w, r, ActorHeader)
	if !ok {
		return 0, "", nil, false
	}
	return id, actor, observability.WithActor(r.Context(), actor), true
}
