// Package cli implements tenantguard-rules, the operator tool for access
// rule files.
//
// validate parses a rules file, from disk or S3, and lists its patterns:
//
//	tenantguard-rules validate -rules rules.yaml
//	tenantguard-rules validate -s3-bucket policies -s3-key tenantguard/rules.yaml
//
// check evaluates one request offline. Memberships are given on the command
// line instead of being read from a store:
//
//	tenantguard-rules check -rules rules.yaml \
//		-path /organizations/orgA/schedules/s1 -op delete \
//		-uid u1 -org-roles orgA=manager
//
// check prints the decision as JSON and fails with ErrDenied when the request
// is denied.
package cli
