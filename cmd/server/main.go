package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"exchange-service/config"
	"exchange-service/internal/api"
	"exchange-service/internal/broker"
	"exchange-service/internal/catalog"
	"exchange-service/internal/identity"
	"exchange-service/internal/redisclient"
	"exchange-service/internal/service"
	"exchange-service/internal/store"
	"exchange-service/internal/util"
	"exchange-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting exchange service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store_driver", cfg.Database.Driver))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo   store.Repository
		checks = map[string]api.ReadinessCheck{}
	)
	switch cfg.Database.Driver {
	case "memory":
		mem := store.NewMemoryStore()
		store.SeedDemoCatalog(mem)
		repo = mem
		logger.Warn("Using in-memory store, data will not survive a restart")
	default:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		repo = db
		checks["database"] = func(ctx context.Context) error { return db.GetDB().PingContext(ctx) }
		logger.Info("Database connected")
	}
	defer repo.Close()

	// interface-typed so a disabled redis stays a true nil
	var (
		idempotency service.IdempotencyStore
		guard       service.OnceGuard
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		idempotency, guard = redisClient, redisClient
		checks["redis"] = func(ctx context.Context) error { return redisClient.GetClient().Ping(ctx).Err() }
		logger.Info("Redis connected")
	}

	var producer *broker.Producer
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))
	}
	eventPublisher := broker.NewEventPublisher(producer)

	catalogSource := catalog.NewCached(repo, cfg.Business.CatalogCacheSize, cfg.Business.CatalogCacheTTL)

	policy := service.DefaultDispatchPolicy()
	policy.Mode = service.ParseDispatchMode(cfg.Notifications.Mode)
	policy.Delay = cfg.Notifications.Delay
	policy.NotifyAllTransitions = cfg.Notifications.NotifyAllTransitions
	policy.OnceTTL = cfg.Business.IdempotencyTTL

	facade := service.NewFacade(
		service.NewTransactionCoordinator(repo, catalogSource, eventPublisher),
		service.NewRequestTracker(repo, eventPublisher),
		service.NewTrustLedger(repo, eventPublisher, cfg.Business.FeedbackOnePerStage),
		service.NewNotificationDispatcher(repo, guard, policy),
		catalogSource,
		idempotency,
		cfg.Business.IdempotencyTTL,
	)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(facade, identity.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), cfg.Server.CORSOrigins)
	for name, check := range checks {
		handler.AddReadinessCheck(name, check)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicInbound, cfg.Kafka.ConsumerGroup)
		lifecycleWorker := worker.NewLifecycleWorker(consumer, facade)
		g.Go(func() error {
			err := lifecycleWorker.Start(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		defer lifecycleWorker.Stop()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", zap.Error(err))
		}
		if err := facade.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Pending notifications not drained", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}
