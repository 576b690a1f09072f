package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/rules"
)

// orgRoles collects repeated -org-roles orgA=manager,staff flags.
type orgRoles map[string][]rbac.Role

func (o orgRoles) String() string {
	parts := make([]string, 0, len(o))
	for org, roles := range o {
		parts = append(parts, org+"="+strings.Join(rbac.Strings(roles), ","))
	}
	return strings.Join(parts, " ")
}

func (o orgRoles) Set(value string) error {
	org, list, ok := strings.Cut(value, "=")
	if !ok || org == "" || list == "" {
		return fmt.Errorf("expected org=role[,role], got %q", value)
	}
	roles, err := rbac.ParseRoles(strings.Split(list, ","))
	if err != nil {
		return err
	}
	o[org] = append(o[org], roles...)
	return nil
}

func newCheckCommand(env Env) *Command {
	cmd := &Command{
		Name:        "check",
		Description: "Evaluate one request against a rules file offline",
		Flags:       flag.NewFlagSet("check", flag.ContinueOnError),
	}
	var lf loadFlags
	lf.register(cmd.Flags)
	path := cmd.Flags.String("path", "", "Document path, e.g. /organizations/orgA/schedules/s1")
	op := cmd.Flags.String("op", "get", "Operation: get, list, create, update or delete")
	uid := cmd.Flags.String("uid", "", "Verified user id of the caller")
	superAdmin := cmd.Flags.Bool("super-admin", false, "Caller holds the global admin role")
	memberships := orgRoles{}
	cmd.Flags.Var(memberships, "org-roles", "Active membership as org=role[,role]; repeatable")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *path == "" {
			return errors.New("-path is required")
		}
		parsedOp, err := rules.ParseOp(*op)
		if err != nil {
			return err
		}
		rs, err := lf.load(env)
		if err != nil {
			return err
		}

		store := rbac.NewMemoryStore()
		for org, roles := range memberships {
			if err := store.PutMembership(context.Background(), &rbac.Membership{UserID: *uid, OrgID: org, Roles: roles}); err != nil {
				return err
			}
		}
		evaluator, err := rules.NewEvaluator(rs, store)
		if err != nil {
			return err
		}

		req := rules.Request{Path: *path, Op: parsedOp}
		if *uid != "" {
			req.Identity = &auth.Identity{UserID: *uid}
			if *superAdmin {
				req.Identity.Claims.GlobalRoles = []string{string(rbac.SuperAdminRole)}
			}
		}

		decision, err := evaluator.Evaluate(context.Background(), req)
		if err != nil {
			return err
		}
		env.Logger.WithFields(map[string]interface{}{
			"path":    *path,
			"op":      parsedOp,
			"allowed": decision.Allowed,
		}).Debug("evaluated")

		enc := json.NewEncoder(env.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(decision); err != nil {
			return err
		}
		if !decision.Allowed {
			return fmt.Errorf("%w: %s", ErrDenied, decision.Reason)
		}
		return nil
	}
	return cmd
}
