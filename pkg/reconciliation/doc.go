// Package reconciliation compares stored invoices against fresh usage
// exports and classifies the result.
//
// # Verdicts
//
//	OK                  every field within tolerance
//	DRIFT               at least one field outside tolerance
//	EXPORT_UNAVAILABLE  the usage export could not be fetched (high risk)
//	SKIPPED_VOID        the invoice is void; no export is fetched
//
// Engine evaluates one invoice. Gate folds engine results over a period into
// an advisory ready-to-charge verdict, and Summarizer builds per-tenant period
// summaries. None of them write.
//
// Read paths never fail on a usage export outage: unavailability is a verdict,
// not an error. Only a missing invoice or a store read fault is returned as an
// error, and Gate.Assess folds even those into a SYSTEM_ERROR issue.
package reconciliation
