package rules

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Path variables with fixed meaning.
const (
	OrgVar  = "orgId"
	UserVar = "userId"
)

// DefaultCacheSize bounds the per-RuleSet match cache.
const DefaultCacheSize = 1024

type options struct {
	cacheSize int
}

// Option configures a RuleSet.
type Option func(*options)

// WithCacheSize sets how many path matches are cached.
func WithCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

type cachedMatch struct {
	rule int
	vars map[string]string
}

// RuleSet is an immutable, compiled set of rules. The first rule whose
// pattern matches a path decides it. Matches are cached per RuleSet, so a
// reload starts with an empty cache.
type RuleSet struct {
	rules []rule
	cache *lru.Cache[string, cachedMatch]
}

func newRuleSet(rules []rule, opts ...Option) (*RuleSet, error) {
	o := options{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := lru.New[string, cachedMatch](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create match cache: %w", err)
	}
	return &RuleSet{rules: rules, cache: cache}, nil
}

// Current lets a RuleSet serve as a static Source.
func (rs *RuleSet) Current() *RuleSet { return rs }

// Len returns the number of rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Patterns returns the match patterns in evaluation order.
func (rs *RuleSet) Patterns() []string {
	out := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.pattern.source
	}
	return out
}

// match returns the deciding rule for path, or nil. The returned vars must
// not be modified.
func (rs *RuleSet) match(path string) (*rule, map[string]string) {
	if m, ok := rs.cache.Get(path); ok {
		if m.rule < 0 {
			return nil, nil
		}
		return &rs.rules[m.rule], m.vars
	}
	for i := range rs.rules {
		if vars, ok := rs.rules[i].pattern.match(path); ok {
			rs.cache.Add(path, cachedMatch{rule: i, vars: vars})
			return &rs.rules[i], vars
		}
	}
	rs.cache.Add(path, cachedMatch{rule: -1})
	return nil, nil
}

// Source supplies the rule set in effect.
type Source interface {
	Current() *RuleSet
}
