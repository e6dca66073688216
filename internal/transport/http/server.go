package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"helparo/internal/cache"
	"helparo/internal/config"
	"helparo/internal/database"
	"helparo/internal/handler"
	"helparo/internal/logger"
	"helparo/internal/metrics"
	"helparo/internal/queue"
	"helparo/internal/ratelimit"
	"helparo/internal/redis"
	"helparo/internal/repository"
	"helparo/internal/service"
	"helparo/internal/worker"
)

const (
	shutdownTimeout = 15 * time.Second
	streamMaxLen    = 100000
)

func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	var (
		statusCache cache.StatusCache
		limiter     ratelimit.Limiter
		publisher   queue.Publisher
		consumer    queue.Consumer
	)
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			return err
		}
		statusCache = cache.NewStatusCache(rdb.Client, cfg.StatusCacheTTL)
		limiter = ratelimit.NewRedisLimiter(rdb.Client)
		publisher = queue.NewPublisher(rdb.Client, streamMaxLen, log)
		consumer = queue.NewConsumer(rdb.Client, log)
		log.Infow("Redis connected", "cacheTTL", cfg.StatusCacheTTL)
	} else {
		log.Warnw("REDIS_URL not set: status cache, rate limits and push events disabled")
	}

	rec, err := metrics.New(ctx, metrics.Config{
		ServiceName:  "helparo",
		OTLPEndpoint: cfg.MetricsEndpoint,
		Stdout:       cfg.MetricsStdout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.Shutdown(shutdownCtx); err != nil {
			log.Warnw("metrics shutdown failed", "err", err)
		}
	}()

	var push service.PushSender
	if cfg.PushEnabled() {
		fcm, err := service.NewFCMClient(ctx, cfg.FCMProjectID, cfg.FCMClientEmail, cfg.FCMPrivateKey, log)
		if err != nil {
			return fmt.Errorf("failed to init FCM: %w", err)
		}
		push = fcm
	} else {
		log.Warnw("FCM credentials not set: push notifications disabled")
	}

	requestRepo := repository.NewRequestRepository(db)
	tokenRepo := repository.NewDeviceTokenRepository(db)
	rpc := repository.NewRPC(db)

	statusService := service.NewStatusService(requestRepo, statusCache, rec, log)
	requestService := service.NewRequestService(requestRepo, publisher, statusCache, rec, log)
	notificationService := service.NewNotificationService(rpc, tokenRepo, limiter, push, rec, log)

	router := NewRouter(RouterConfig{
		RequestHandler:      handler.NewRequestHandler(statusService, requestService, log),
		MatcherHandler:      handler.NewMatcherHandler(requestService, log),
		NotificationHandler: handler.NewNotificationHandler(notificationService, log),
		PushHandler:         handler.NewPushHandler(notificationService, log),
		JWTSecret:           cfg.JWTSecret,
	})

	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if consumer != nil {
		hostname, _ := os.Hostname()
		manager := worker.NewManager(consumer, worker.NewHandler(notificationService, log), worker.ManagerConfig{
			WorkerCount: cfg.WorkerCount,
			ConsumerID:  hostname,
		}, log)
		if err := manager.Start(gctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			manager.Stop()
			return nil
		})
	}

	g.Go(func() error {
		log.Infow("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Infow("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
