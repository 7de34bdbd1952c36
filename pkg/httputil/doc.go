// Package httputil provides the shared JSON request/response conventions
// and the HTTP middleware chain.
//
// Response helpers:
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteBadRequest(w, "invalid input")
//	httputil.WriteConflict(w, "duplicate role code")
//	httputil.WriteNotFoundError(w, "role not found")
//
// Request parsing:
//
//	var req createRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//	if !httputil.RequireNonEmpty(w, req.RoleCode, "role_code") {
//		return
//	}
//
// Middleware:
//
//	router.Use(httputil.RequestIDMiddleware)
//	router.Use(httputil.LoggingMiddleware(logger))
//	router.Use(httputil.RecoveryMiddleware(logger))
//	router.Use(httputil.MaxBytesMiddleware(1 << 20))
//	router.Use(httputil.ContentTypeMiddleware)
package httputil
