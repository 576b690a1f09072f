// Package audit records security relevant events: every guard rejection,
// session revocation and membership change.
//
// Recorders are composable:
//
//	recorder := audit.NewMultiRecorder(
//		audit.NewLogRecorder(logger),
//		fileRecorder,
//	)
//	ctx = audit.WithRecorder(ctx, recorder)
//
// Guards build events with Rejection so the recorded code and status match
// the response the client saw. Internal causes are never recorded as the
// message.
package audit
