package api

import (
	"time"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/usage"
)

// ExportStatus tells whether the invoice detail carries a fresh export
type ExportStatus string

const (
	ExportComplete   ExportStatus = "COMPLETE"
	ExportIncomplete ExportStatus = "INCOMPLETE"
)

// InvoiceDetail is returned by GET /admin/invoices/{id}
type InvoiceDetail struct {
	Invoice      *billing.Invoice `json:"invoice"`
	Export       *usage.Snapshot  `json:"export"`
	ExportStatus ExportStatus     `json:"exportStatus"`
}

// VoidResponse is returned by a successful void
type VoidResponse struct {
	ID       int64                 `json:"id"`
	Status   billing.InvoiceStatus `json:"status"`
	VoidedAt *time.Time            `json:"voidedAt"`
	VoidedBy *string               `json:"voidedBy"`
}

// FinalizeResponse is returned by a successful finalize
type FinalizeResponse struct {
	ID          int64                 `json:"id"`
	Status      billing.InvoiceStatus `json:"status"`
	FinalizedAt *time.Time            `json:"finalizedAt"`
	FinalizedBy *string               `json:"finalizedBy"`
}
