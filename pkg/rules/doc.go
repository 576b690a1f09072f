// Package rules evaluates declarative, path based access rules for a
// document store.
//
// A rule file is YAML:
//
//	version: 1
//	rules:
//	  - match: /organizations/{orgId}/schedules/{scheduleId}
//	    allow:
//	      get:    {minRole: staff}
//	      write:  {minRole: scheduler}
//	  - match: /users/{userId}
//	    allow:
//	      get: {self: true}
//
// The first rule whose pattern matches decides. Operations not listed are
// denied, and listing a collection is reserved for super admins. Roles for
// {orgId} paths always come from the membership store.
//
// Rule sets are loaded from a file (optionally hot reloaded by Watcher) or
// from S3 (S3Source). Guarded applies the rules in front of a Documents
// store.
package rules
