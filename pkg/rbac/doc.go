/*
Package rbac implements tenant-scoped role based authorization.

Roles form a strict total order:

	staff < corporate < scheduler < manager < admin < org_owner

A user's effective role in an organization is the highest ranked role held by
their membership there. Memberships are looked up by the exact key
userID_orgID; stores expose no way to enumerate them.

# Authorizer

	authorizer, err := rbac.NewAuthorizer(store, rbac.DefaultConfig(), metrics)
	authz, err := authorizer.Authorize(r, rbac.RoleManager)

Authorize resolves the organization from the "orgId" route variable, the
query string, or the request context. A global "admin" claim bypasses the
membership lookup for anything up to RoleAdmin. Missing, inactive, failing
or timed out lookups are all reported as the same 403 response.

# Stores

MemoryStore serves development and tests. SQLStore works with Postgres
(lib/pq) and SQLite; call Migrate before first use.
*/
package rbac
