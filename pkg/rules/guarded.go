package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
)

var (
	// ErrNotFound is returned by Documents for a missing path.
	ErrNotFound = errors.New("document not found")
	// ErrDenied is returned by Guarded when the rules refuse an access.
	ErrDenied = errors.New("access denied by rules")
)

// Documents is a path addressed document store.
type Documents interface {
	Get(ctx context.Context, path string) ([]byte, error)
	// List returns the direct children of collection keyed by full path.
	List(ctx context.Context, collection string) (map[string][]byte, error)
	Set(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
}

// Guarded checks every access against an Evaluator before delegating to
// the wrapped Documents. The identity is taken from the context.
type Guarded struct {
	docs      Documents
	evaluator *Evaluator
}

// NewGuarded wraps docs.
func NewGuarded(docs Documents, evaluator *Evaluator) *Guarded {
	return &Guarded{docs: docs, evaluator: evaluator}
}

func (g *Guarded) check(ctx context.Context, path string, op Op) error {
	decision, err := g.evaluator.Evaluate(ctx, Request{
		Path:     path,
		Op:       op,
		Identity: auth.IdentityFrom(ctx),
	})
	if decision.Allowed {
		return nil
	}

	event := audit.NewEvent(ctx, nil, audit.EventTypeRuleDenied, audit.EventStatusDenied)
	event.Stage = "rules"
	event.Path = path
	event.Message = decision.Reason
	if decision.OrgID != "" {
		event.OrgID = decision.OrgID
	}
	event.Metadata = map[string]any{"op": string(op), "rule": decision.Rule}
	_ = audit.FromContext(ctx).Record(ctx, event)

	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDenied, decision.Reason, err)
	}
	return fmt.Errorf("%w: %s", ErrDenied, decision.Reason)
}

// Get reads path.
func (g *Guarded) Get(ctx context.Context, path string) ([]byte, error) {
	if err := g.check(ctx, path, OpGet); err != nil {
		return nil, err
	}
	return g.docs.Get(ctx, path)
}

// List enumerates collection.
func (g *Guarded) List(ctx context.Context, collection string) (map[string][]byte, error) {
	if err := g.check(ctx, collection, OpList); err != nil {
		return nil, err
	}
	return g.docs.List(ctx, collection)
}

// Set writes path, checked as create when it does not exist yet and as
// update otherwise.
func (g *Guarded) Set(ctx context.Context, path string, data []byte) error {
	op := OpUpdate
	if _, err := g.docs.Get(ctx, path); errors.Is(err, ErrNotFound) {
		op = OpCreate
	} else if err != nil {
		return err
	}
	if err := g.check(ctx, path, op); err != nil {
		return err
	}
	return g.docs.Set(ctx, path, data)
}

// Delete removes path.
func (g *Guarded) Delete(ctx context.Context, path string) error {
	if err := g.check(ctx, path, OpDelete); err != nil {
		return err
	}
	return g.docs.Delete(ctx, path)
}

// MemoryDocuments is an in-process Documents implementation.
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryDocuments creates an empty store.
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string][]byte)}
}

func (m *MemoryDocuments) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryDocuments) List(ctx context.Context, collection string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(collection, "/") + "/"
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte)
	for path, data := range m.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		out[path] = append([]byte(nil), data...)
	}
	return out, nil
}

func (m *MemoryDocuments) Set(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryDocuments) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[path]; !ok {
		return ErrNotFound
	}
	delete(m.docs, path)
	return nil
}

// Paths returns every stored path, sorted.
func (m *MemoryDocuments) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for path := range m.docs {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
