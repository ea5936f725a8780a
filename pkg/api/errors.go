package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/httputil"
	"github.com/platinummonkey/invoicegate/pkg/observability"
)

func invoiceNotFound(id int64) string {
	return fmt.Sprintf("invoice %d not found", id)
}

// writeTransitionError maps a lifecycle rejection onto a status code. Only a
// store failure becomes a 500, and its cause stays in the logs.
func writeTransitionError(w http.ResponseWriter, r *http.Request, err error) {
	var te *billing.TransitionError
	errors.As(err, &te)

	switch {
	case billing.IsValidation(err):
		httputil.WriteBadRequest(w, err.Error())
	case billing.IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case billing.IsInvalidState(err):
		details := map[string]interface{}{}
		if te != nil {
			details["invoiceId"] = te.InvoiceID
			details["reason"] = te.Reason
			if te.From != "" {
				details["status"] = te.From
			}
			if len(te.Details) > 0 {
				details["details"] = te.Details
			}
		}
		httputil.WriteConflict(w, err.Error(), details)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Invoice transition store failure")
		httputil.WriteInternalError(w)
	}
}
