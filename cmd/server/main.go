// Command server runs the municipal identity registry: the HTTP API, the
// Redis snapshot cache and the audit outbox worker, all under one lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"civreg/internal/certifier"
	certifierstore "civreg/internal/certifier/store"
	identitymetrics "civreg/internal/identity/metrics"
	"civreg/internal/identity/service"
	identitystore "civreg/internal/identity/store"
	"civreg/internal/permission"
	"civreg/internal/platform/config"
	"civreg/internal/platform/httpserver"
	"civreg/internal/platform/logger"
	"civreg/internal/platform/middleware"
	platformredis "civreg/internal/platform/redis"
	"civreg/internal/reconcile"
	reconcilemetrics "civreg/internal/reconcile/metrics"
	httptransport "civreg/internal/transport/http"
	audit "civreg/pkg/platform/audit"
	auditpublisher "civreg/pkg/platform/audit/publisher"
	auditmemory "civreg/pkg/platform/audit/store/memory"
	auditpostgres "civreg/pkg/platform/audit/store/postgres"
	auditworker "civreg/pkg/platform/audit/worker"
)

func main() {
	cfg := config.FromEnv()

	log, err := logger.New(cfg.Server.Environment)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Certifier reference data and identity persistence. Without a database
	// URL everything runs in memory, which is enough for local development.
	var (
		registry   *certifier.Registry
		idStore    identitystore.Store
		auditStore audit.Store
		sqlDB      *sql.DB
		err        error
	)
	if cfg.Postgres.URL != "" {
		pool, poolErr := pgxpool.New(ctx, cfg.Postgres.URL)
		if poolErr != nil {
			return poolErr
		}
		defer pool.Close()

		sqlDB, err = sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		certStore := certifierstore.NewPostgresStore(sqlDB)
		if err = certStore.EnsureSeeded(ctx); err != nil {
			return err
		}
		registry, err = certStore.LoadRegistry(ctx)
		if err != nil {
			return err
		}

		idStore = identitystore.NewPostgresStore(pool)
		auditStore = auditpostgres.New(sqlDB)
	} else {
		log.Warn("no database configured, running fully in memory")
		registry, err = certifier.NewRegistry(certifierstore.SeedDefinitions())
		if err != nil {
			return err
		}
		idStore = identitystore.NewInMemoryStore()
		auditStore = auditmemory.NewInMemoryStore()
	}

	idMetrics := identitymetrics.New()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		idStore = identitystore.NewCachedStore(idStore, redisClient.Client,
			identitystore.WithCacheTTL(cfg.Redis.CacheTTL),
			identitystore.WithCacheLogger(log),
			identitystore.WithCacheMetrics(idMetrics),
		)
	}

	orchestrator, err := reconcile.NewOrchestrator(registry)
	if err != nil {
		return err
	}

	// Service contracts are provisioned out of band; the store starts empty
	// and is filled by the provisioning tooling.
	contracts := permission.NewInMemoryContractStore()
	resolver, err := permission.NewResolver(contracts)
	if err != nil {
		return err
	}

	pub := auditpublisher.NewPublisher(auditStore, auditpublisher.WithAsyncBuffer(cfg.Audit.BufferSize))
	defer pub.Close()

	svc, err := service.New(idStore, orchestrator, resolver,
		service.WithAuditPublisher(pub),
		service.WithMetrics(idMetrics),
		service.WithReconcileMetrics(reconcilemetrics.New()),
		service.WithLogger(log),
	)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Identity:      svc,
		Contracts:     contracts,
		Authenticator: middleware.NewAuthenticator(cfg.Server.JWTSigningKey),
		Logger:        log,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting civreg", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 && sqlDB != nil {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.AllowAutoTopicCreation(),
		)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()

		worker := auditworker.New(sqlDB, kafkaClient, log, auditworker.WithTopic(cfg.Kafka.Topic))
		if err := worker.EnsureTopic(ctx, 3, 1); err != nil {
			return err
		}
		group.Go(func() error {
			err := worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
