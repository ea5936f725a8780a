// Package api implements the internal admin HTTP API for invoice
// reconciliation and lifecycle transitions.
//
// Routes:
//
//	GET  /admin/reconciliation/invoices/{id}
//	GET  /admin/reconciliation/tenants/{tenantId}/period?start=&end=
//	GET  /admin/reconciliation/ready-to-charge?start=&end=
//	GET  /admin/invoices?tenantId=&start=&end=&limit=&offset=
//	GET  /admin/invoices/{id}
//	POST /admin/invoices/{id}/void       (X-Admin-Actor required)
//	POST /admin/invoices/{id}/finalize   (X-Admin-Actor required)
//
// Errors map as NotFound→404, InvalidState→409, Validation→400 and
// StoreFailure→500. Read endpoints fold usage export outages into the
// response body instead of failing.
package api
