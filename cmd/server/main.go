package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"alumni/internal/alumni"
	"alumni/internal/alumni/service"
	alumnistore "alumni/internal/alumni/store"
	"alumni/internal/audit/capture"
	"alumni/internal/audit/feed"
	"alumni/internal/audit/redact"
	"alumni/internal/audit/retention"
	"alumni/internal/audit/retention/coldstore"
	"alumni/internal/audit/retention/lock"
	auditstore "alumni/internal/audit/store"
	"alumni/internal/authz"
	jwttoken "alumni/internal/jwt_token"
	"alumni/internal/ledger"
	"alumni/internal/platform/config"
	"alumni/internal/platform/database"
	"alumni/internal/platform/httpserver"
	"alumni/internal/platform/logger"
	"alumni/internal/platform/metrics"
	redisclient "alumni/internal/platform/redis"
	"alumni/internal/ratelimit"
	ratelimitmetrics "alumni/internal/ratelimit/metrics"
	ratelimitmw "alumni/internal/ratelimit/middleware"
	"alumni/internal/ratelimit/store/bucket"
	"alumni/internal/restore"
	httptransport "alumni/internal/transport/http"
	"alumni/internal/twofactor"
	tfstore "alumni/internal/twofactor/store"
	"alumni/pkg/platform/sqldialect"
)

const shutdownGrace = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("alumni audit service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db, dialect, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Bootstrap(ctx, db, dialect); err != nil {
		return err
	}

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	redactor, err := redact.Load(cfg.Audit.RedactionFile, cfg.Audit.RedactedFields)
	if err != nil {
		return err
	}

	// Audit core.
	tables := alumni.Tables()
	ledgerStore := auditstore.NewLedger(db, dialect)
	backups := auditstore.NewBackups(db, dialect)
	executions := auditstore.NewExecutions(db, dialect)

	runnerOpts := []capture.RunnerOption{
		capture.WithRunnerLogger(log),
		capture.WithRunnerMetrics(capture.NewMetrics(reg)),
	}
	producer, err := newFeedProducer(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		runnerOpts = append(runnerOpts, capture.WithFeed(feed.New(producer, cfg.Kafka.Topic, redactor,
			feed.WithLogger(log), feed.WithMetrics(feed.NewMetrics(reg)))))
	}
	interceptor := capture.NewInterceptor(tables, ledgerStore, backups,
		capture.WithLogger(log),
		capture.WithMaxBinaryBytes(cfg.Audit.MaxBinaryBytes),
		capture.WithSkipEmptyUpdates(cfg.Audit.SkipEmptyUpdates),
	)
	runner := capture.NewRunner(db, dialect, interceptor, cfg.Database.TxTimeout, runnerOpts...)

	var sessionStore twofactor.Store = tfstore.NewSQL(db, dialect)
	if cfg.Sessions.Store == "redis" {
		sessionStore = tfstore.NewRedis(rdb.Client)
	}
	sessions := twofactor.NewService(sessionStore,
		twofactor.WithMinTTL(cfg.Sessions.MinTTL),
		twofactor.WithLogger(log),
		twofactor.WithMetrics(twofactor.NewMetrics(reg)),
	)

	executor := restore.NewExecutor(db, cfg.Database.TxTimeout,
		restore.NewRegistry(tables, dialect),
		authz.NewPolicy(cfg.Audit.InfraPrincipals...),
		sessions, backups, executions,
		restore.WithLogger(log),
		restore.WithMetrics(restore.NewMetrics(reg)),
	)

	archiver, closeCold, err := newArchiver(ctx, cfg, db, dialect, rdb, ledgerStore, backups, sessions, reg, log)
	if err != nil {
		return err
	}
	defer closeCold()

	// HTTP surface.
	jwtValidator := jwttoken.NewAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience))
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Metrics:        metrics.New(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Completions:    ledgerStore,
		Validator:      jwtValidator,
		AdminToken:     cfg.AdminAPIToken,
		RateLimit:      newRateLimiter(cfg.RateLimit, rdb, reg, log),
		HealthChecks:   healthChecks(db, rdb),
		Audit:          httptransport.NewAuditHandler(ledger.NewService(ledgerStore, backups, executions, redactor), log),
		Restore:        httptransport.NewRestoreHandler(executor, log),
		Sessions:       httptransport.NewSessionHandler(sessions, log),
		Banks:          httptransport.NewBankHandler(service.NewBankService(runner, alumnistore.NewBanks(db, dialect)), log),
	})
	srv := httpserver.New(cfg.Addr, router)

	scheduler := retention.NewScheduler(archiver, cfg.Retention.RunHour, retention.WithSchedulerLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, shutdownGrace, log)
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	log.Info("alumni audit service started",
		"addr", cfg.Addr,
		"database", string(dialect.Name()),
		"session_store", cfg.Sessions.Store,
		"archive_target", cfg.Retention.Target,
		"change_feed", producer != nil,
	)
	return g.Wait()
}

// newFeedProducer connects to Kafka when brokers are configured. The feed is
// optional; capture never depends on it.
func newFeedProducer(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		log.Info("change feed disabled, no brokers configured")
		return nil, nil
	}
	client, err := feed.NewClient(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := feed.EnsureTopic(ensureCtx, client, cfg.Topic, 3, 1); err != nil {
		log.Warn("change feed topic not ensured, publishing anyway", "topic", cfg.Topic, "error", err)
	}
	return client, nil
}

func healthChecks(db *sql.DB, rdb *redisclient.Client) map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{"database": db.PingContext}
	if rdb != nil {
		checks["redis"] = rdb.Health
	}
	return checks
}

func newRateLimiter(cfg config.RateLimitConfig, rdb *redisclient.Client, reg prometheus.Registerer, log *slog.Logger) *ratelimitmw.Middleware {
	var store ratelimit.Store = bucket.NewInMemoryBucketStore()
	if rdb != nil {
		store = bucket.NewRedisStore(rdb.Client)
	}
	return ratelimitmw.New(store, log,
		ratelimitmw.WithDisabled(cfg.Disabled),
		ratelimitmw.WithMetrics(ratelimitmetrics.New(reg)),
		ratelimitmw.WithLimit(ratelimit.ClassRestore, ratelimit.Limit{Requests: cfg.RestorePerMinute, Window: time.Minute}),
		ratelimitmw.WithLimit(ratelimit.ClassSession, ratelimit.Limit{Requests: cfg.SessionPerMinute, Window: time.Minute}),
	)
}

func newArchiver(
	ctx context.Context,
	cfg config.Server,
	db *sql.DB,
	dialect sqldialect.Dialect,
	rdb *redisclient.Client,
	ledgerStore *auditstore.Ledger,
	backups *auditstore.Backups,
	sessions *twofactor.Service,
	reg prometheus.Registerer,
	log *slog.Logger,
) (*retention.Archiver, func(), error) {
	closeCold := func() {}
	var cold retention.ColdStore
	switch cfg.Retention.Target {
	case "s3":
		client, err := coldstore.NewS3Client(ctx, cfg.Retention.S3Region)
		if err != nil {
			return nil, nil, err
		}
		cold = coldstore.NewS3(client, cfg.Retention.S3Bucket, cfg.Retention.S3Prefix)
	case "pgarchive":
		pg, err := coldstore.NewPGArchive(ctx, cfg.Retention.ArchiveDatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		cold, closeCold = pg, pg.Close
	case "table":
		cold = coldstore.NewTable(auditstore.NewArchive(db, dialect))
	default:
		return nil, nil, errors.New("unknown archive target " + cfg.Retention.Target)
	}

	var locker retention.Locker
	switch {
	case rdb != nil:
		locker = lock.NewRedis(rdb.Client, 5*time.Minute)
	case dialect.Name() == sqldialect.Postgres:
		locker = lock.NewPostgresAdvisory(db)
	default:
		locker = lock.NewLocal()
	}

	archiver := retention.NewArchiver(ledgerStore, auditstore.NewManifest(db, dialect), cold, locker, backups,
		retention.Config{LedgerDays: cfg.Retention.LedgerDays, SnapshotDays: cfg.Retention.SnapshotDays},
		retention.WithLogger(log),
		retention.WithMetrics(retention.NewMetrics(reg)),
		retention.WithSessionPurger(sessions),
	)
	return archiver, closeCold, nil
}
