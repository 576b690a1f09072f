package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// SupportedVersion is the only rule file version understood.
const SupportedVersion = 1

// Op is a storage operation.
type Op string

const (
	OpGet    Op = "get"
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Ops lists every operation.
var Ops = []Op{OpGet, OpList, OpCreate, OpUpdate, OpDelete}

// aliases expand the grouped keys accepted in rule files.
var aliases = map[string][]Op{
	"read":  {OpGet, OpList},
	"write": {OpCreate, OpUpdate, OpDelete},
}

// ParseOp validates an operation name.
func ParseOp(s string) (Op, error) {
	op := Op(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Ops {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// File is the YAML document.
type File struct {
	Version int        `yaml:"version"`
	Rules   []RuleSpec `yaml:"rules"`
}

// RuleSpec grants operations on paths matching Match.
type RuleSpec struct {
	Match string               `yaml:"match"`
	Allow map[string]Condition `yaml:"allow"`
}

// Condition must hold in full for an operation to be allowed.
type Condition struct {
	// MinRole requires an active membership in {orgId} at this rank or higher.
	MinRole string `yaml:"minRole,omitempty"`
	// Member requires any active membership in {orgId}.
	Member bool `yaml:"member,omitempty"`
	// Self requires {userId} to equal the verified user id.
	Self bool `yaml:"self,omitempty"`
	// SuperAdmin restricts the operation to super admins.
	SuperAdmin bool `yaml:"superAdmin,omitempty"`
}

func (c Condition) empty() bool {
	return c.MinRole == "" && !c.Member && !c.Self && !c.SuperAdmin
}

// compiledCondition is a Condition with its role parsed.
type compiledCondition struct {
	minRole    rbac.Role
	member     bool
	self       bool
	superAdmin bool
}

func (c compiledCondition) needsMembership() bool {
	return c.minRole != "" || c.member
}

type rule struct {
	pattern *pattern
	allow   map[Op]compiledCondition
}

// Parse decodes and validates a rule file.
func Parse(data []byte, opts ...Option) (*RuleSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("rule file is empty")
		}
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return Compile(file, opts...)
}

// LoadFile reads and parses a rule file from disk.
func LoadFile(path string, opts ...Option) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	rs, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Compile validates file and builds a RuleSet.
func Compile(file File, opts ...Option) (*RuleSet, error) {
	if file.Version != SupportedVersion {
		return nil, fmt.Errorf("unsupported rules version %d", file.Version)
	}
	rules := make([]rule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		r, err := compileRule(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, r)
	}
	return newRuleSet(rules, opts...)
}

func compileRule(spec RuleSpec) (rule, error) {
	p, err := compilePattern(spec.Match)
	if err != nil {
		return rule{}, err
	}
	if len(spec.Allow) == 0 {
		return rule{}, fmt.Errorf("%s: no operations allowed", spec.Match)
	}

	r := rule{pattern: p, allow: make(map[Op]compiledCondition)}
	for key, cond := range spec.Allow {
		ops, alias := aliases[strings.ToLower(key)]
		if !alias {
			op, err := ParseOp(key)
			if err != nil {
				return rule{}, fmt.Errorf("%s: %w", spec.Match, err)
			}
			ops = []Op{op}
		}
		compiled, err := compileCondition(p, cond)
		if err != nil {
			return rule{}, fmt.Errorf("%s %s: %w", spec.Match, key, err)
		}
		for _, op := range ops {
			if _, dup := r.allow[op]; dup {
				return rule{}, fmt.Errorf("%s: operation %s granted twice", spec.Match, op)
			}
			if op == OpList && !compiled.superAdmin {
				// "read" only covers list for super admins
				if alias {
					continue
				}
				return rule{}, fmt.Errorf("%s: list may only be granted with superAdmin", spec.Match)
			}
			r.allow[op] = compiled
		}
	}
	return r, nil
}

func compileCondition(p *pattern, cond Condition) (compiledCondition, error) {
	if cond.empty() {
		return compiledCondition{}, fmt.Errorf("empty condition")
	}
	out := compiledCondition{member: cond.Member, self: cond.Self, superAdmin: cond.SuperAdmin}
	if cond.MinRole != "" {
		role, err := rbac.ParseRole(cond.MinRole)
		if err != nil {
			return compiledCondition{}, err
		}
		out.minRole = role
	}
	if out.needsMembership() && !p.vars[OrgVar] {
		return compiledCondition{}, fmt.Errorf("minRole and member need {%s} in the match pattern", OrgVar)
	}
	if out.self && !p.vars[UserVar] {
		return compiledCondition{}, fmt.Errorf("self needs {%s} in the match pattern", UserVar)
	}
	return out, nil
}
