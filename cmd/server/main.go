package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/myglasscase/glasscase/config"
	appmodel "github.com/myglasscase/glasscase/internal/app/model"
	apprepository "github.com/myglasscase/glasscase/internal/app/repository"
	appserver "github.com/myglasscase/glasscase/internal/app/server"
	appservice "github.com/myglasscase/glasscase/internal/app/service"
	"github.com/myglasscase/glasscase/internal/http/handler"
	"github.com/myglasscase/glasscase/internal/http/middleware"
	"github.com/myglasscase/glasscase/internal/http/util"
	"github.com/myglasscase/glasscase/internal/infra/cache"
	"github.com/myglasscase/glasscase/internal/infra/logger"
	infraNATS "github.com/myglasscase/glasscase/internal/infra/nats"
	infraPostgres "github.com/myglasscase/glasscase/internal/infra/postgres"
	infraPrometheus "github.com/myglasscase/glasscase/internal/infra/prometheus"
	infraRedis "github.com/myglasscase/glasscase/internal/infra/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.MustInit(logger.Config{
		Development: cfg.IsDev(),
		Level:       cfg.App.LogLevel,
		Service:     "glasscase",
		FilePath:    cfg.App.LogFile,
	})
	defer func() { _ = logger.Sync() }()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
		zap.Bool("ebay_enabled", cfg.Ebay.Enabled()),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres, logger.Component("gorm"))
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.ShareLink{},
		&appmodel.EbayCredential{},
		&appmodel.EbayListing{},
		&appmodel.ShareViewEvent{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	// Redis only backs caching and rate limiting, so the service degrades without it.
	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, using in-process cache and rate limiter", zap.Error(err))
	} else {
		defer redisClient.Close()
		log.Info("Connected to Redis successfully")
	}

	// Created before NATS so connection loss can suspend it.
	shareIndex := appservice.NewShareIndex(cfg.Share.IndexCapacity, cfg.Share.IndexFPRate, logger.Component("share_index"))

	natsConn, js, err := infraNATS.Connect(cfg.NATS, logger.Component("nats"), shareIndex)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !cfg.IsDev() {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	shareLinkRepo := apprepository.NewShareLinkRepository(gormDB)
	itemRepo := apprepository.NewInventoryItemRepository(gormDB)
	profileRepo := apprepository.NewProfileRepository(pool)
	ebayRepo := apprepository.NewEbayCredentialRepository(gormDB)
	viewRepo := apprepository.NewShareViewRepository(gormDB)
	listingRepo := apprepository.NewEbayListingRepository(gormDB)

	appCache := cache.New(redisClient, cfg.Share.CacheSizeBytes)

	// Subscribe first so tokens created by peers while seeding are not lost.
	if err := shareIndex.Listen(natsConn); err != nil {
		log.Fatal("Failed to subscribe share index updates", zap.Error(err))
	}
	defer shareIndex.Close()
	if err := shareIndex.Seed(ctx, shareLinkRepo); err != nil {
		log.Warn("Failed to seed share index, lookups fall through to storage", zap.Error(err))
	}
	go shareIndex.Run(ctx, shareLinkRepo, cfg.Share.IndexResync)

	shareLinkService := appservice.NewShareLinkService(shareLinkRepo, shareIndex, appCache,
		appservice.ShareLinkServiceConfig{CacheTTL: cfg.Share.CacheTTL},
		logger.Component("share_links"))

	viewPublisher := appservice.NewShareViewPublisher(js, cfg.Share.IPHashSalt, logger.Component("share_views"))
	collectionService := appservice.NewPublicCollectionService(shareLinkService, itemRepo, profileRepo,
		viewPublisher, logger.Component("share_collection"))

	viewConsumer := appservice.NewShareViewConsumer(js, logger.Component("share_view_recorder"), viewRepo)
	if err := viewConsumer.Start(ctx); err != nil {
		log.Fatal("Failed to start share view consumer", zap.Error(err))
	}

	stateSecret := cfg.Ebay.StateSecret
	if stateSecret == "" {
		stateSecret = cfg.Ebay.ClientSecret
	}
	ebayService := appservice.NewEbayAuthService(
		appservice.EbayAuthConfig{
			ClientID:     cfg.Ebay.ClientID,
			ClientSecret: cfg.Ebay.ClientSecret,
			RedirectURI:  cfg.Ebay.RedirectURI,
			AuthURL:      cfg.Ebay.AuthURL,
			TokenURL:     cfg.Ebay.TokenURL,
			StateTTL:     cfg.Ebay.StateTTL,
		},
		ebayRepo,
		util.NewStateSigner([]byte(stateSecret), cfg.Ebay.StateTTL),
		appservice.NewNATSAuthNotifier(natsConn, logger.Component("ebay_auth")),
		appCache,
		logger.Component("ebay"),
	)

	refresher := appservice.NewEbayTokenRefresher(logger.Component("ebay_refresher"), ebayService,
		cfg.Ebay.RefreshInterval, cfg.Ebay.RefreshWindow)
	if cfg.Ebay.Enabled() {
		refresher.Start()
		defer refresher.Stop()
	}

	listingService := appservice.NewEbayListingService(
		appservice.EbayTradingConfig{
			Endpoint:           cfg.Ebay.TradingURL,
			DevID:              cfg.Ebay.DevID,
			AppID:              cfg.Ebay.ClientID,
			CertID:             cfg.Ebay.ClientSecret,
			SiteID:             cfg.Ebay.SiteID,
			CompatibilityLevel: cfg.Ebay.CompatibilityLevel,
			ItemURLBase:        cfg.Ebay.ItemURLBase,
		},
		ebayService,
		itemRepo,
		listingRepo,
		logger.Component("ebay_listings"),
	)

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Redis:       redisClient,
		ShareLinks:  shareLinkService,
		Collections: collectionService,
		Ebay:        ebayService,
		Listings:    listingService,
		Auth: middleware.AuthConfig{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
		},
		RateLimit: middleware.RateLimitConfig{
			MaxRequests: cfg.Share.RateLimit,
			Window:      cfg.Share.RateWindow,
		},
		Checks:      healthChecks(pool, redisClient),
		CORSOrigins: cfg.Server.CORSOrigins,
		PublicURL:   cfg.Server.BaseURL,
	})

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.Listen(cfg.Server.Addr); err != nil {
			log.Error("Fiber server exited", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down HTTP server cleanly", zap.Error(err))
	}

	select {
	case <-viewConsumer.Done():
	case <-shutdownCtx.Done():
		log.Warn("Share view consumer did not stop before shutdown timeout")
	}
}

func healthChecks(pool *pgxpool.Pool, rdb *redis.Client) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"postgres": func(ctx context.Context) error { return infraPostgres.Ping(ctx, pool) },
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return infraRedis.Ping(ctx, rdb) }
	}
	return checks
}
