// Command authcore runs the security core daemon: the periodic cleanup worker
// and the operator HTTP API over the configured key-value store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"authcore/internal/admin"
	"authcore/internal/audit"
	authMetrics "authcore/internal/auth/metrics"
	sessionService "authcore/internal/auth/service"
	sessionStore "authcore/internal/auth/store/session"
	mfaMetrics "authcore/internal/mfa/metrics"
	"authcore/internal/mfa/sender"
	mfaService "authcore/internal/mfa/service"
	mfaStore "authcore/internal/mfa/store"
	"authcore/internal/platform/config"
	"authcore/internal/platform/health"
	"authcore/internal/platform/kafka/producer"
	"authcore/internal/platform/kvstore"
	"authcore/internal/platform/logger"
	"authcore/internal/platform/middleware"
	"authcore/internal/platform/redis"
	"authcore/internal/platform/storage"
	"authcore/internal/platform/tracer"
	rlMetrics "authcore/internal/ratelimit/metrics"
	"authcore/internal/ratelimit/service/authlockout"
	"authcore/internal/ratelimit/service/requestlimit"
	"authcore/internal/workers/cleanup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("authcore exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stores, err := storage.Open(ctx, cfg, storage.Deps{
		Logger:       log,
		StoreMetrics: kvstore.NewMetrics(reg),
		RedisMetrics: redis.NewPoolMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("store close failed", "error", err)
		}
	}()

	probes := health.New(cfg.Environment)
	probes.RegisterCheck("store", stores.Health)

	publisher, auditRing, closeAudit, err := buildAudit(cfg, log, reg, probes)
	if err != nil {
		return err
	}
	defer closeAudit()

	var tr tracer.Tracer = tracer.NewNoop()
	if cfg.TracingEnabled {
		tr = tracer.NewOTel()
	}

	rateMetrics := rlMetrics.New(reg)
	registry, err := requestlimit.NewRegistry(cfg.RateLimits, stores.Store,
		requestlimit.WithLogger(log),
		requestlimit.WithAuditPublisher(publisher),
		requestlimit.WithMetrics(rateMetrics),
	)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	lockout, err := authlockout.New(stores.Store,
		authlockout.WithLogger(log),
		authlockout.WithAuditPublisher(publisher),
		authlockout.WithMetrics(rateMetrics),
		authlockout.WithConfig(cfg.RateLimits.AuthLockout),
	)
	if err != nil {
		return fmt.Errorf("lockout guard: %w", err)
	}

	sessionCfg := sessionService.DefaultConfig()
	sessionCfg.MaxInactiveTime = cfg.Session.MaxInactiveTime
	sessionCfg.MaxSessionsPerUser = cfg.Session.MaxSessionsPerUser
	sessionCfg.RotateOnRefresh = cfg.Session.RotateOnRefresh
	sessions, err := sessionService.New(sessionStore.New(stores.Store),
		sessionService.WithLogger(log),
		sessionService.WithAuditPublisher(publisher),
		sessionService.WithMetrics(authMetrics.New(reg)),
		sessionService.WithConfig(sessionCfg),
		sessionService.WithTracer(tr),
	)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	mfaCfg := mfaService.DefaultConfig()
	mfaCfg.EncryptionKey = cfg.SecretKey
	twoFactor, err := mfaService.New(mfaStore.New(stores.Store),
		mfaService.WithLogger(log),
		mfaService.WithAuditPublisher(publisher),
		mfaService.WithMetrics(mfaMetrics.New(reg)),
		mfaService.WithConfig(mfaCfg),
		mfaService.WithTracer(tr),
		mfaService.WithCodeSender(sender.NewLogSender(log)),
	)
	if err != nil {
		return fmt.Errorf("two-factor manager: %w", err)
	}

	worker, err := cleanup.New(sessions, registry, lockout, twoFactor,
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithLogger(log),
		cleanup.WithMetrics(cleanup.NewMetrics(reg)),
		cleanup.WithStore(stores.Purger),
	)
	if err != nil {
		return fmt.Errorf("cleanup worker: %w", err)
	}

	adminSvc, err := admin.NewService(registry, lockout, sessions,
		admin.WithLogger(log),
		admin.WithTwoFactor(twoFactor),
		admin.WithAuditReader(auditRing),
	)
	if err != nil {
		return fmt.Errorf("admin service: %w", err)
	}
	router := admin.NewRouter(cfg.Admin, admin.New(adminSvc, log), probes, reg, middleware.NewMetrics(reg), log)
	srv := admin.NewServer(cfg.Admin, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("cleanup worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("admin api listening", "addr", cfg.Admin.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin api: %w", err)
		}
		return nil
	})
	if stores.Redis != nil {
		g.Go(func() error {
			stores.Redis.RecordPoolStatsEvery(gctx, 15*time.Second)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildAudit returns the publisher services emit to and the in-memory ring the
// admin API reads. When Kafka brokers are configured events are also produced
// to the audit topic.
func buildAudit(cfg *config.Config, log *slog.Logger, reg prometheus.Registerer, probes *health.Handler) (*audit.Publisher, *audit.MemoryStore, func(), error) {
	ring := audit.NewMemoryStore(cfg.AuditBuffer)
	var sink audit.Store = ring
	closers := []func(){}

	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(cfg.Kafka,
			producer.WithLogger(log),
			producer.WithMetrics(producer.NewMetrics(reg)),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("audit kafka producer: %w", err)
		}
		probes.RegisterCheck("kafka", p.Healthy)
		sink = audit.Multi{ring, audit.NewKafkaStore(p, cfg.Kafka.Topic)}
		closers = append(closers, func() { _ = p.Close() })
	}

	publisher := audit.NewPublisher(sink,
		audit.WithAsyncBuffer(cfg.AuditBuffer),
		audit.WithPublisherLogger(log),
		audit.WithPublisherMetrics(audit.NewMetrics(reg)),
	)
	// publisher drains before the producer is closed
	closers = append([]func(){publisher.Close}, closers...)
	return publisher, ring, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
