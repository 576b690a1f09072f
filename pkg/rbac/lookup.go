package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

type lookupResult struct {
	membership *Membership
	err        error
}

// LookupMembership fetches the membership of userID in orgID, bounded by
// timeout. The store runs on its own goroutine: a call that outlives the
// deadline is abandoned and a panic becomes an error. A nil record, or one
// granted to a different pair, is reported as ErrMembershipNotFound.
func LookupMembership(ctx context.Context, store MembershipStore, userID, orgID string, timeout time.Duration, spanName string, metrics *observability.Metrics) (*Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, spanName, attribute.String("org.id", orgID))
	start := time.Now()

	done := make(chan lookupResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- lookupResult{err: fmt.Errorf("membership store panic: %v", rec)}
			}
		}()
		m, err := store.GetMembership(ctx, userID, orgID)
		done <- lookupResult{membership: m, err: err}
	}()

	var res lookupResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = lookupResult{err: fmt.Errorf("membership lookup: %w", ctx.Err())}
	}
	if res.err == nil && (res.membership == nil || !res.membership.belongsTo(userID, orgID)) {
		res = lookupResult{err: ErrMembershipNotFound}
	}

	// Not found is a normal answer, not a dependency failure.
	callErr := res.err
	if errors.Is(callErr, ErrMembershipNotFound) {
		callErr = nil
	}
	metrics.ObserveExternalCall("membership_store", start, callErr)
	observability.EndSpan(span, callErr)
	return res.membership, res.err
}
