// Package billing defines the invoice record, its lifecycle states and the
// error taxonomy shared by the reconciliation and lifecycle packages.
//
// # Lifecycle
//
// An invoice is created elsewhere in the draft state. From draft it can move
// exactly once, either to void or to finalized. Both are terminal:
//
//	draft ──void──────▶ void
//	draft ──finalize──▶ finalized
//
// Recorded totals (tokens, cost, governance events) are immutable once the
// row exists. Only the status and the matching audit pair are ever written.
//
// # Errors
//
// Failures are classified with sentinel errors so the API layer can map them
// to status codes:
//
//	billing.ErrInvoiceNotFound   -> 404
//	billing.ErrInvalidState      -> 409
//	billing.ErrValidation        -> 400
//	billing.ErrStoreFailure      -> 500
//
// Lifecycle rejections are *TransitionError values carrying the invoice id and
// the violated precondition.
//
// # Related Packages
//
//   - pkg/storage: InvoiceStore implementations (SQLite, PostgreSQL, memory)
//   - pkg/lifecycle: void and finalize transitions
//   - pkg/reconciliation: drift detection against the usage export
package billing
