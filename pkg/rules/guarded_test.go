package rules

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (c *captureRecorder) Record(_ context.Context, e *audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

func asUser(rec audit.Recorder, id *auth.Identity) context.Context {
	return audit.WithRecorder(auth.WithIdentity(context.Background(), id), rec)
}

func newTestGuarded(t *testing.T) (*Guarded, *MemoryDocuments) {
	t.Helper()
	docs := NewMemoryDocuments()
	return NewGuarded(docs, newTestEvaluator(t, testStore())), docs
}

func TestGuardedCreateThenUpdate(t *testing.T) {
	g, docs := newTestGuarded(t)
	rec := &captureRecorder{}
	path := "/organizations/orgA/schedules/s1"

	// staff may read but not create
	err := g.Set(asUser(rec, user("staff")), path, []byte(`{"v":1}`))
	require.ErrorIs(t, err, ErrDenied)
	assert.Contains(t, err.Error(), ReasonRoleTooLow)
	assert.Empty(t, docs.Paths())

	require.NoError(t, g.Set(asUser(rec, user("manager")), path, []byte(`{"v":1}`)))
	require.NoError(t, g.Set(asUser(rec, user("manager")), path, []byte(`{"v":2}`)))

	data, err := g.Get(asUser(rec, user("staff")), path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))

	require.Len(t, rec.events, 1)
	event := rec.events[0]
	assert.Equal(t, audit.EventTypeRuleDenied, event.Type)
	assert.Equal(t, "staff", event.UserID)
	assert.Equal(t, "orgA", event.OrgID)
	assert.Equal(t, path, event.Path)
	assert.Equal(t, "create", event.Metadata["op"])
}

func TestGuardedTenantIsolation(t *testing.T) {
	g, docs := newTestGuarded(t)
	rec := &captureRecorder{}
	require.NoError(t, docs.Set(context.Background(), "/organizations/orgA/schedules/s1", []byte(`{}`)))

	ctx := asUser(rec, user("scheduler"))
	_, err := g.Get(ctx, "/organizations/orgA/schedules/s1")
	assert.ErrorIs(t, err, ErrDenied)
	assert.ErrorIs(t, g.Delete(ctx, "/organizations/orgA/schedules/s1"), ErrDenied)
	assert.Equal(t, []string{"/organizations/orgA/schedules/s1"}, docs.Paths())
}

func TestGuardedList(t *testing.T) {
	g, docs := newTestGuarded(t)
	rec := &captureRecorder{}
	ctx := context.Background()
	require.NoError(t, docs.Set(ctx, "/organizations/orgA/schedules/s1", []byte(`1`)))
	require.NoError(t, docs.Set(ctx, "/organizations/orgA/schedules/s2", []byte(`2`)))
	require.NoError(t, docs.Set(ctx, "/organizations/orgA/schedules/s2/shifts/x", []byte(`3`)))
	require.NoError(t, docs.Set(ctx, "/organizations/orgB/schedules/s9", []byte(`4`)))

	_, err := g.List(asUser(rec, user("manager")), "/organizations/orgA/schedules")
	assert.ErrorIs(t, err, ErrDenied)

	items, err := g.List(asUser(rec, user("root", "admin")), "/organizations/orgA/schedules")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Contains(t, items, "/organizations/orgA/schedules/s1")
	assert.Contains(t, items, "/organizations/orgA/schedules/s2")
}

func TestGuardedDelete(t *testing.T) {
	g, docs := newTestGuarded(t)
	require.NoError(t, docs.Set(context.Background(), "/organizations/orgA/schedules/s1", []byte(`{}`)))

	ctx := asUser(audit.NopRecorder{}, user("staff"))
	assert.ErrorIs(t, g.Delete(ctx, "/organizations/orgA/schedules/s1"), ErrDenied)

	ctx = asUser(audit.NopRecorder{}, user("manager"))
	require.NoError(t, g.Delete(ctx, "/organizations/orgA/schedules/s1"))
	assert.ErrorIs(t, g.Delete(ctx, "/organizations/orgA/schedules/s1"), ErrNotFound)
}

func TestGuardedLookupFailureDenies(t *testing.T) {
	boom := errors.New("store offline")
	rs, err := Parse([]byte(testRules))
	require.NoError(t, err)
	e, err := NewEvaluator(rs, storeFunc(func(context.Context, string, string) (*rbac.Membership, error) {
		return nil, boom
	}))
	require.NoError(t, err)
	g := NewGuarded(NewMemoryDocuments(), e)

	_, err = g.Get(asUser(audit.NopRecorder{}, user("manager")), "/organizations/orgA/schedules/s1")
	assert.ErrorIs(t, err, ErrDenied)
	assert.ErrorIs(t, err, boom)
}

func TestGuardedRequiresIdentity(t *testing.T) {
	g, _ := newTestGuarded(t)
	_, err := g.Get(context.Background(), "/users/u1")
	require.ErrorIs(t, err, ErrDenied)
	assert.Contains(t, err.Error(), ReasonNoIdentity)
}

func TestMemoryDocumentsCopies(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()
	data := []byte("abc")
	require.NoError(t, docs.Set(ctx, "/a", data))
	data[0] = 'x'

	got, err := docs.Get(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	_, err = docs.Get(ctx, "/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = docs.Get(cancelled, "/a")
	assert.ErrorIs(t, err, context.Canceled)
}
