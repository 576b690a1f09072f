package main

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/csrf"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/ratelimit"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/rules"
	"github.com/platinummonkey/tenantguard/pkg/session"
)

//go:embed default_rules.yaml
var defaultRules []byte

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tenantguard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting tenantguard")

	ctx := context.Background()
	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	runner := observability.NewRunner(logger, cfg.Server.ShutdownTimeout)
	runner.RegisterShutdownFunc(otelProviders.Shutdown)

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb, err = newRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		runner.RegisterShutdownFunc(func(context.Context) error { return rdb.Close() })
	}

	recorder, err := newRecorder(cfg.Audit, logger)
	if err != nil {
		return err
	}
	runner.RegisterShutdownFunc(func(context.Context) error { return recorder.Close() })

	proxies, err := httputil.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return err
	}
	limiter, err := newLimiter(cfg.RateLimit, rdb, runner, logger, metrics)
	if err != nil {
		return err
	}

	guard, err := csrf.New(cfg.CSRF)
	if err != nil {
		return fmt.Errorf("failed to create CSRF guard: %w", err)
	}

	verifier, sessions, err := newVerifier(ctx, cfg.Session, rdb)
	if err != nil {
		return err
	}
	authenticator, err := session.NewAuthenticator(verifier, cfg.Session.Authenticator, metrics)
	if err != nil {
		return err
	}

	db, members, err := newMembershipStore(ctx, cfg.Memberships, logger)
	if err != nil {
		return err
	}
	if db != nil {
		runner.RegisterShutdownFunc(func(context.Context) error { return db.Close() })
	}
	authorizer, err := rbac.NewAuthorizer(members, cfg.Authorization, metrics)
	if err != nil {
		return err
	}

	ruleSource, err := newRuleSource(ctx, cfg.Rules, runner, logger, metrics)
	if err != nil {
		return err
	}
	evaluator, err := rules.NewEvaluator(ruleSource, members,
		rules.WithTimeout(cfg.Authorization.Timeout), rules.WithMetrics(metrics))
	if err != nil {
		return err
	}

	a := &app{
		logger:        logger,
		metrics:       metrics,
		proxies:       proxies,
		recorder:      recorder,
		limiter:       limiter,
		csrf:          guard,
		authenticator: authenticator,
		authorizer:    authorizer,
		members:       members,
		documents:     rules.NewGuarded(rules.NewMemoryDocuments(), evaluator),
		maxBodyBytes:  cfg.Validation.MaxBodyBytes,
	}
	if sessions != nil {
		a.sessions = sessions
	}

	runner.AddServer(&http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      a.handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, rdb))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	runner.AddServer(&http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	})

	return runner.Run(ctx)
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB >= 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts), nil
}

func newRecorder(cfg config.AuditConfig, logger *observability.Logger) (audit.Recorder, error) {
	recorders := []audit.Recorder{audit.NewLogRecorder(logger)}
	if cfg.Dir != "" {
		file, err := audit.NewFileRecorder(audit.FileConfig{Dir: cfg.Dir, MaxSize: cfg.MaxSize, MaxFiles: cfg.MaxFiles})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		recorders = append(recorders, file)
	}
	return audit.NewMultiRecorder(recorders...), nil
}

func newLimiter(cfg config.RateLimitConfig, rdb *redis.Client, runner *observability.Runner, logger *observability.Logger, metrics *observability.Metrics) (*ratelimit.Limiter, error) {
	var store ratelimit.Store
	switch cfg.Backend {
	case config.BackendRedis:
		store = ratelimit.NewRedisStore(rdb)
	default:
		memory := ratelimit.NewMemoryStore()
		runner.AddTask(ratelimit.NewSweeper(memory, cfg.SweepInterval, logger, metrics).Run)
		store = memory
	}
	logger.WithField("backend", store.Backend()).Info("Rate limiter configured")
	return ratelimit.NewLimiter(store, cfg.Limiter, ratelimit.WithMetrics(metrics))
}

// newVerifier also returns the session store when it supports revocation.
func newVerifier(ctx context.Context, cfg config.SessionConfig, rdb *redis.Client) (session.Verifier, *session.RedisStore, error) {
	switch cfg.Verifier {
	case config.BackendOIDC:
		v, err := session.NewOIDCVerifier(ctx, cfg.OIDC)
		if err != nil {
			return nil, nil, err
		}
		return v, nil, nil
	default:
		store := session.NewRedisStore(rdb, cfg.TTL)
		return store, store, nil
	}
}

func newMembershipStore(ctx context.Context, cfg config.MembershipConfig, logger *observability.Logger) (*sql.DB, memberStore, error) {
	if cfg.Backend == config.BackendMemory {
		logger.Warn("Using the in-memory membership store; memberships are lost on restart")
		return nil, rbac.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	store := rbac.NewSQLStore(db, logger)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

func newRuleSource(ctx context.Context, cfg config.RulesConfig, runner *observability.Runner, logger *observability.Logger, metrics *observability.Metrics) (rules.Source, error) {
	opts := []rules.Option{rules.WithCacheSize(cfg.CacheSize)}
	switch cfg.Source {
	case config.SourceFile:
		if !cfg.Watch {
			return rules.LoadFile(cfg.Path, opts...)
		}
		w, err := rules.NewWatcher(cfg.Path, logger, metrics, opts...)
		if err != nil {
			return nil, err
		}
		runner.AddTask(w.Run)
		return w, nil
	case config.SourceS3:
		client, err := rules.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		src, err := rules.NewS3Source(ctx, client, cfg.S3, logger, metrics, opts...)
		if err != nil {
			return nil, err
		}
		runner.AddTask(src.Run)
		return src, nil
	default:
		logger.Info("No rules source configured, using built-in rules")
		return rules.Parse(defaultRules, opts...)
	}
}
