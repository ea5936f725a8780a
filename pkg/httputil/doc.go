// Package httputil provides HTTP helpers shared by the admin API: JSON
// responses, path and query parsing, and middleware.
//
// Responses:
//
//	httputil.WriteSuccess(w, report)
//	httputil.WriteConflict(w, err.Error(), map[string]interface{}{"reason": reason})
//	httputil.WriteInternalError(w) // generic body, log the cause
//
// Parsing:
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	start, present, err := httputil.ParseQueryTime(r, "start")
//	actor, ok := httputil.RequireHeader(w, r, "X-Admin-Actor")
//
// Middleware:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)
package httputil
