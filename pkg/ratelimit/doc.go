// Package ratelimit implements a fixed-window request limiter over a
// pluggable counter Store.
//
// # Algorithm
//
// The first request for a key opens a window of length Window with
// count=cost. Until the window ends, a request whose cost would push the
// count past Max is denied and the count is left untouched; otherwise the
// count grows by cost. Once the window has ended the bucket is replaced.
//
// A fixed window admits up to 2*Max requests around a window boundary. That
// is accepted behaviour, not a bug.
//
// # Stores
//
//	store := ratelimit.NewMemoryStore()                 // single instance
//	store := ratelimit.NewRedisStore(redisClient)       // shared across instances
//
// The Redis store runs check-and-increment as one Lua script, so concurrent
// requests never lose updates. Any Redis failure denies the request and
// returns an error wrapping ErrBackendUnavailable.
//
// The memory store needs its expired buckets swept. Sweeper owns that
// background job:
//
//	sweeper := ratelimit.NewSweeper(store, time.Minute, logger, metrics)
//	sweeper.Start(ctx)
//	defer sweeper.Stop()
//
// # Limiter
//
//	limiter, err := ratelimit.NewLimiter(store, ratelimit.Config{Max: 100, Window: time.Minute})
//	result, err := limiter.Consume(ctx, limiter.Key(r), 1)
package ratelimit
