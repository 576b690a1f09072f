// Package httputil provides the HTTP error taxonomy and the helpers every
// guard writes responses with.
//
// # Error Envelope
//
// Every non-2xx produced by the stack has one shape:
//
//	{"error": {"code": "FORBIDDEN", "message": "Requires role manager or higher"}}
//
// Guards return *Error values; WriteError serializes them. Anything else is
// reported as 500 INTERNAL_ERROR and its text stays in the logs:
//
//	return httputil.Forbidden(httputil.CodeForbidden, msg).WithCause(err)
//	httputil.WriteError(w, err)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)
//
// StatusWriter records whether a response has started. The pipeline in
// pkg/middleware uses it to stop a stage from running the next one after
// replying.
//
// # Related Packages
//
//   - pkg/middleware: guard stages and the pipeline
package httputil
