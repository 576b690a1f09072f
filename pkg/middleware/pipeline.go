package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// ErrStageOrder is returned when stages are not in strictly increasing phase
// order.
var ErrStageOrder = errors.New("middleware stages out of order")

// Phase fixes where a stage runs. Lower phases run first.
type Phase int

const (
	PhaseRateLimit Phase = iota + 1
	PhaseCSRF
	PhaseAuthenticate
	PhaseAuthorize
	PhaseValidate
)

func (p Phase) String() string {
	switch p {
	case PhaseRateLimit:
		return "ratelimit"
	case PhaseCSRF:
		return "csrf"
	case PhaseAuthenticate:
		return "authenticate"
	case PhaseAuthorize:
		return "authorize"
	case PhaseValidate:
		return "validate"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Stage is one guard of the pipeline. Wrap returns a handler that either
// writes a terminal response or calls next.
type Stage interface {
	Phase() Phase
	Name() string
	Wrap(next http.Handler) http.Handler
}

// StageFunc is the body of a stage built with NewStage.
type StageFunc func(w http.ResponseWriter, r *http.Request, next http.Handler)

type funcStage struct {
	phase Phase
	name  string
	fn    StageFunc
}

// NewStage adapts fn to a Stage.
func NewStage(phase Phase, name string, fn StageFunc) Stage {
	return &funcStage{phase: phase, name: name, fn: fn}
}

func (s *funcStage) Phase() Phase { return s.phase }
func (s *funcStage) Name() string { return s.name }

func (s *funcStage) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fn(w, r, next)
	})
}

// Pipeline is an ordered, validated list of stages.
type Pipeline struct {
	stages []Stage
}

// NewPipeline validates that phases strictly increase, so authorization can
// never run before authentication and CSRF never after authorization.
func NewPipeline(stages ...Stage) (*Pipeline, error) {
	var last Phase
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("%w: stage %d is nil", ErrStageOrder, i)
		}
		if s.Phase() <= last {
			return nil, fmt.Errorf("%w: %s (%s) after %s", ErrStageOrder, s.Name(), s.Phase(), last)
		}
		last = s.Phase()
	}
	return &Pipeline{stages: append([]Stage(nil), stages...)}, nil
}

// MustPipeline is NewPipeline for static route tables.
func MustPipeline(stages ...Stage) *Pipeline {
	p, err := NewPipeline(stages...)
	if err != nil {
		panic(err)
	}
	return p
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Then wraps h with every stage. The first rejection wins.
func (p *Pipeline) Then(h http.Handler) http.Handler {
	handler := h
	for i := len(p.stages) - 1; i >= 0; i-- {
		stage := p.stages[i]
		handler = stage.Wrap(onlyIfUnwritten(stage, handler))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(httputil.NewStatusWriter(w), r)
	})
}

// ThenFunc is Then for a handler function.
func (p *Pipeline) ThenFunc(fn http.HandlerFunc) http.Handler {
	return p.Then(fn)
}

// onlyIfUnwritten drops a call to next made after the stage already replied.
func onlyIfUnwritten(stage Stage, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if written(w) {
			observability.FromContext(r.Context()).
				WithField("stage", stage.Name()).
				Error("stage called next after writing a response")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func written(w http.ResponseWriter) bool {
	for w != nil {
		if sw, ok := w.(*httputil.StatusWriter); ok {
			return sw.Written()
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
	return false
}
