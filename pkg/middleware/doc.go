/*
Package middleware composes the request guards into a fixed-order pipeline.

Stages run in phase order:

	RateLimit -> CSRF -> Authenticate -> Authorize -> Validate -> handler

NewPipeline rejects stage lists that break this order with ErrStageOrder, so
a route can omit stages but never reorder them:

	opts := middleware.Options{Logger: logger, Metrics: metrics, Recorder: recorder}
	schedules := middleware.MustPipeline(
		middleware.RateLimit(limiter, opts),
		middleware.CSRF(guard, opts),
		middleware.Authenticate(authenticator, opts),
		middleware.Authorize(authorizer, rbac.RoleScheduler, opts),
		middleware.Validate(validator, opts),
	)
	router.Handle("/organizations/{orgId}/schedules", schedules.Then(handler))

Each stage either writes an error envelope or calls the next handler, never
both: a call to next after a response was started is dropped and logged.
Rejections are counted in guard_decisions_total, logged at warn (error for
backend failures) and sent to the audit recorder.
*/
package middleware
