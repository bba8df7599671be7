package app

import (
	"context"
	"fmt"

	"leadpilot-service/internal/config"
	"leadpilot-service/internal/db"
	billingHandler "leadpilot-service/internal/handlers/billing"
	"leadpilot-service/internal/middleware"
	"leadpilot-service/internal/provider"
	"leadpilot-service/internal/provider/cashfree"
	"leadpilot-service/internal/provider/paypal"
	"leadpilot-service/internal/repository/postgres"
	billingService "leadpilot-service/internal/service/billing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, engine: gin.New()}, nil
}

func (s *Server) Start(ctx context.Context) error {
	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	if err := db.ApplyMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// ----- Redis (sweep coordination) -----
	var sweepLock billingService.SweepLock
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		PoolSize: 10,
	})
	if err != nil {
		// The sweep's bulk update is idempotent; missing coordination only
		// means replicas may sweep twice.
		logger.Warn("redis unavailable, sweeping without a leader lock", zap.Error(err))
	} else {
		defer redisClient.Close()
		sweepLock = billingService.NewRedisSweepLock(redisClient)
	}

	// ----- Payment providers -----
	registry := provider.NewRegistry(
		paypal.New(s.cfg.PayPal.ClientID, s.cfg.PayPal.ClientSecret, s.cfg.PayPal.Environment, s.cfg.ProviderTimeout, logger),
		cashfree.New(s.cfg.Cashfree.ClientID, s.cfg.Cashfree.ClientSecret, s.cfg.Cashfree.Environment, s.cfg.ProviderTimeout, logger),
	)
	logger.Info("payment providers registered", zap.Strings("providers", registry.Names()))

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	// ----- Services -----
	orderService := billingService.NewOrderService(registry, userRepo, s.cfg.Pricing, logger)
	verifyService := billingService.NewVerifyService(subscriptionRepo, userRepo, dbWrapper, registry, s.cfg.Pricing, logger)
	subscriptionService := billingService.NewSubscriptionService(subscriptionRepo, logger)
	sweeper := billingService.NewSweeper(subscriptionRepo, sweepLock, s.cfg.SweepInterval, logger)

	go sweeper.Run(ctx)

	// ----- Handlers & middlewares -----
	handler := billingHandler.NewBillingHandler(orderService, verifyService, subscriptionService)
	authMiddleware := middleware.NewAuthMiddleware(s.cfg.JWTSecret)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	SetupRouter(s.engine, &Handlers{
		BillingHandler: handler,
		AuthMiddleware: authMiddleware,
	})

	logger.Info("server starting", zap.String("addr", s.cfg.HTTPAddr))
	return s.engine.Run(s.cfg.HTTPAddr)
}
