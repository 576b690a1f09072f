package rules

import (
	"fmt"
	"regexp"
	"strings"
)

var varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type segmentKind int

const (
	segLiteral segmentKind = iota
	segVar
	segRest
)

type segment struct {
	kind  segmentKind
	value string
}

// pattern is a compiled match expression such as
// "/organizations/{orgId}/schedules/{scheduleId}" or "/files/{path=**}".
type pattern struct {
	source   string
	segments []segment
	vars     map[string]bool
}

func compilePattern(source string) (*pattern, error) {
	p := &pattern{source: source, vars: make(map[string]bool)}
	parts, ok := splitPath(source)
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("invalid match pattern %q", source)
	}
	for i, part := range parts {
		if !strings.HasPrefix(part, "{") {
			if strings.ContainsAny(part, "{}") {
				return nil, fmt.Errorf("invalid segment %q in %q", part, source)
			}
			p.segments = append(p.segments, segment{kind: segLiteral, value: part})
			continue
		}
		if !strings.HasSuffix(part, "}") {
			return nil, fmt.Errorf("unterminated variable %q in %q", part, source)
		}
		name := part[1 : len(part)-1]
		kind := segVar
		if before, ok := strings.CutSuffix(name, "=**"); ok {
			if i != len(parts)-1 {
				return nil, fmt.Errorf("%q must be the last segment of %q", part, source)
			}
			name, kind = before, segRest
		}
		if !varName.MatchString(name) {
			return nil, fmt.Errorf("invalid variable name %q in %q", name, source)
		}
		if p.vars[name] {
			return nil, fmt.Errorf("duplicate variable %q in %q", name, source)
		}
		p.vars[name] = true
		p.segments = append(p.segments, segment{kind: kind, value: name})
	}
	return p, nil
}

// match returns the captured variables when path matches.
func (p *pattern) match(path string) (map[string]string, bool) {
	parts, ok := splitPath(path)
	if !ok {
		return nil, false
	}
	vars := make(map[string]string, len(p.vars))
	for i, seg := range p.segments {
		if seg.kind == segRest {
			vars[seg.value] = strings.Join(parts[i:], "/")
			return vars, true
		}
		if i >= len(parts) {
			return nil, false
		}
		switch seg.kind {
		case segLiteral:
			if parts[i] != seg.value {
				return nil, false
			}
		case segVar:
			vars[seg.value] = parts[i]
		}
	}
	if len(parts) != len(p.segments) {
		return nil, false
	}
	return vars, true
}

// splitPath splits a slash separated path. Empty, "." and ".." segments make
// the path invalid.
func splitPath(path string) ([]string, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, true
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return nil, false
		}
	}
	return parts, true
}
