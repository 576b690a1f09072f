package audit

import (
	"context"
	"errors"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
	Close() error
}

// WithRecorder adds a recorder to the context.
func WithRecorder(ctx context.Context, recorder Recorder) context.Context {
	return context.WithValue(ctx, contextkeys.AuditRecorderKey, recorder)
}

// FromContext returns the recorder in ctx, or a no-op recorder.
func FromContext(ctx context.Context) Recorder {
	if recorder, ok := ctx.Value(contextkeys.AuditRecorderKey).(Recorder); ok && recorder != nil {
		return recorder
	}
	return NopRecorder{}
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Event) error { return nil }
func (NopRecorder) Close() error                         { return nil }

// MultiRecorder writes each event to every recorder in order.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder combines recorders. Nil entries are skipped.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	m := &MultiRecorder{}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

// Record continues past failing recorders and returns their joined errors.
func (m *MultiRecorder) Record(ctx context.Context, event *Event) error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every recorder.
func (m *MultiRecorder) Close() error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
