package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	grpclib "google.golang.org/grpc"

	"github.com/simaogato/tradejournal-backend/internal/adapter/binance"
	grpcadapter "github.com/simaogato/tradejournal-backend/internal/adapter/grpc"
	"github.com/simaogato/tradejournal-backend/internal/adapter/httpserver"
	"github.com/simaogato/tradejournal-backend/internal/adapter/metrics"
	"github.com/simaogato/tradejournal-backend/internal/adapter/realtime"
	redisadapter "github.com/simaogato/tradejournal-backend/internal/adapter/redis"
	"github.com/simaogato/tradejournal-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/tradejournal-backend/internal/adapter/stripe"
	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/auth"
	"github.com/simaogato/tradejournal-backend/internal/platform/config"
	"github.com/simaogato/tradejournal-backend/internal/platform/logging"
	"github.com/simaogato/tradejournal-backend/internal/usecase/analytics"
	"github.com/simaogato/tradejournal-backend/internal/usecase/capital"
	"github.com/simaogato/tradejournal-backend/internal/usecase/costbasis"
	"github.com/simaogato/tradejournal-backend/internal/usecase/dashboard"
	"github.com/simaogato/tradejournal-backend/internal/usecase/fees"
	"github.com/simaogato/tradejournal-backend/internal/usecase/goal"
	"github.com/simaogato/tradejournal-backend/internal/usecase/importer"
	"github.com/simaogato/tradejournal-backend/internal/usecase/leverage"
	"github.com/simaogato/tradejournal-backend/internal/usecase/progress"
	"github.com/simaogato/tradejournal-backend/internal/usecase/regime"
	"github.com/simaogato/tradejournal-backend/internal/usecase/subscription"
	"github.com/simaogato/tradejournal-backend/internal/usecase/trade"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	// 1. Setup Database
	db, err := postgres.NewDB(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("Database schema applied")

	// 2. Initialize Repositories (Postgres)
	tradeRepo := postgres.NewTradeRepository(db)
	goalRepo := postgres.NewGoalRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	importRepo := postgres.NewImportRepository(db)
	widgetRepo := postgres.NewWidgetRepository(db)
	capitalRepo := postgres.NewCapitalRepository(db)
	progressRepo := postgres.NewProgressRepository(db)

	// 3. Infrastructure: metrics, fee schedule, market data, realtime
	m := metrics.New()

	schedule := fees.DefaultSchedule()
	if cfg.FeeSchedulePath != "" {
		if schedule, err = fees.LoadSchedule(cfg.FeeSchedulePath); err != nil {
			return fmt.Errorf("failed to load fee schedule: %w", err)
		}
		logger.WithField("path", cfg.FeeSchedulePath).Info("Fee schedule loaded")
	}

	var marketData domain.MarketData = binance.NewClient(
		binance.WithBaseURL(cfg.BinanceBaseURL),
		binance.WithTimeout(cfg.BinanceTimeout),
		binance.WithRateLimit(cfg.BinanceRatePerSec),
		binance.WithLogger(logger),
		binance.WithRecorder(m),
	)

	hub := realtime.NewHub(logger)
	defer hub.Stop()

	var publisher domain.EventPublisher = realtime.LocalPublisher{Hub: hub}
	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: db.PingContext},
	}

	var bus *redisadapter.EventBus
	if cfg.RedisURL != "" {
		rc, err := redisadapter.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}

		marketData = redisadapter.NewMarketCache(rc, marketData, cfg.PriceCacheTTL, cfg.KlineCacheTTL, logger)
		bus = redisadapter.NewEventBus(rc, logger)
		publisher = bus
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: rc.Ping})
		logger.Info("Redis enabled for market cache and realtime fan-out")
	} else {
		logger.Warn("REDIS_URL not set; market data is uncached and realtime events stay on this instance")
	}

	// 4. Initialize Services (Use Cases)
	clock := clockwork.NewRealClock()

	subscriptionService := subscription.NewSubscriptionService(subscriptionRepo, tradeRepo, importRepo, clock)
	subscriptionService.Publisher = publisher
	subscriptionService.Failures = m
	subscriptionService.SuccessURL = cfg.CheckoutSuccessURL
	subscriptionService.CancelURL = cfg.CheckoutCancelURL
	if cfg.StripeEnabled() {
		subscriptionService.Billing = stripe.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret,
			stripe.WithLogger(logger),
			stripe.WithRecorder(m),
		)
		subscriptionService.PriceIDs[domain.PlanPro] = cfg.StripePricePro
		subscriptionService.PriceIDs[domain.PlanElite] = cfg.StripePriceElite
	} else {
		logger.Warn("Stripe is not configured; checkout and webhooks are disabled")
	}

	progressService := progress.NewProgressService(progressRepo, publisher, clock)
	progressService.Observer = m
	progressService.Failures = m

	goalService := goal.NewGoalService(goalRepo, tradeRepo, clock)
	goalService.XP = progressService
	goalService.Publisher = publisher
	goalService.Failures = m

	tradeService := trade.NewTradeService(tradeRepo, schedule, marketData, publisher, clock)
	tradeService.XP = progressService
	tradeService.Quota = subscriptionService
	tradeService.Goals = goalService
	tradeService.Observer = m
	tradeService.Failures = m

	analyticsService := analytics.NewAnalyticsService(tradeRepo, capitalRepo, subscriptionService)
	capitalService := capital.NewCapitalService(capitalRepo, clock)
	dashboardService := dashboard.NewDashboardService(widgetRepo, analyticsService, progressService, goalService, tradeService, clock)

	regimeService := regime.NewRegimeService(marketData)
	regimeService.Plans = subscriptionService

	importService := importer.NewImportService(tradeRepo, importRepo, subscriptionService, clock)
	importService.Schedule = schedule
	importService.XP = progressService
	importService.Publisher = publisher
	importService.Observer = m
	importService.Failures = m

	// 5. Start gRPC Server
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(logger),
			grpcadapter.AuthInterceptor(verifier),
		),
	)
	grpcHealth := grpcadapter.Register(grpcServer, &grpcadapter.Server{
		TradeService:        tradeService,
		AnalyticsService:    analyticsService,
		DashboardService:    dashboardService,
		ProgressService:     progressService,
		GoalService:         goalService,
		CapitalService:      capitalService,
		Calculator:          leverage.NewCalculator(schedule),
		CostBasisService:    costbasis.NewCostBasisService(tradeRepo, marketData),
		RegimeService:       regimeService,
		SubscriptionService: subscriptionService,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	// 6. HTTP server
	httpSrv := httpserver.NewServer(cfg, logger, verifier, httpserver.Deps{
		Imports:      importService,
		Billing:      subscriptionService,
		Hub:          hub,
		Metrics:      m,
		HealthChecks: healthChecks,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpclib.ErrServerStopped) {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})

	g.Go(httpSrv.Start)

	if bus != nil {
		g.Go(func() error {
			err := bus.Run(gctx, hub.Deliver)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("event bus stopped: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		grpcHealth.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		logger.Info("gRPC server stopped")

		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
