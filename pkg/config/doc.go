// Package config loads tenantguard configuration from environment variables.
//
// Every variable is prefixed with TENANTGUARD_. Unset variables fall back to
// defaults; LoadConfig validates the result and returns an error rather than
// exiting.
//
// Server settings:
//
//	TENANTGUARD_HOST="0.0.0.0"
//	TENANTGUARD_PORT="8080"
//	TENANTGUARD_HEALTH_PORT="9090"
//	TENANTGUARD_SHUTDOWN_TIMEOUT="30s"
//
// Guards:
//
//	TENANTGUARD_RATE_LIMIT_BACKEND="memory"  # memory, redis
//	TENANTGUARD_RATE_LIMIT_MAX="100"
//	TENANTGUARD_RATE_LIMIT_WINDOW="1m"
//	TENANTGUARD_CSRF_TOKEN_LENGTH="32"
//	TENANTGUARD_SESSION_VERIFIER="redis"     # redis, oidc
//	TENANTGUARD_OIDC_ISSUER_URL="https://accounts.example.com"
//	TENANTGUARD_AUTHZ_TIMEOUT="2s"
//	TENANTGUARD_MEMBERSHIP_BACKEND="sql"     # sql, memory
//	TENANTGUARD_POSTGRES_DSN="postgres://localhost/tenantguard"
//	TENANTGUARD_MAX_BODY_BYTES="1048576"
//
// Access rules:
//
//	TENANTGUARD_RULES_SOURCE="file"          # file, s3, or empty
//	TENANTGUARD_RULES_PATH="/etc/tenantguard/rules.yaml"
//	TENANTGUARD_RULES_S3_BUCKET="policies"
//
// Observability:
//
//	TENANTGUARD_LOG_LEVEL="info"
//	TENANTGUARD_OTEL_ENABLED="true"
//	TENANTGUARD_OTEL_ENDPOINT="otel-collector:4317"
package config
