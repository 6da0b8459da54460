package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"options-dashboard/auth"
	"options-dashboard/cache"
	"options-dashboard/config"
	"options-dashboard/controllers"
	"options-dashboard/database"
	"options-dashboard/interfaces"
	"options-dashboard/services"
)

// store is what the process needs from a storage driver
type store interface {
	interfaces.OptionStore
	interfaces.UserStore
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	var db store
	switch cfg.StorageDriver {
	case config.DriverMemory:
		db = database.NewMemoryStore()
		logger.Warn("Using in-memory storage, contracts are lost on restart")
	default:
		local, err := database.NewLocalStorage(cfg.DatabasePath, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open database")
		}
		defer local.Close()
		db = local
	}

	var backend cache.Backend = cache.NewMemoryBackend()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer client.Close()
		backend = cache.NewRedisBackend(client)
		logger.WithField("addr", cfg.RedisAddr).Info("Quote cache backed by Redis")
	}
	quotes := cache.NewQuoteCache(backend, cfg.QuoteCacheTTL, logger)

	var fetcher interfaces.QuoteFetcher = services.NewPolygonClient(cfg.PolygonAPIKey, cfg.PolygonBaseURL, cfg.UpstreamTimeout, logger)
	if cfg.UpstreamRetries > 0 {
		fetcher = services.NewRetryingQuoteClient(fetcher, cfg.UpstreamRetries, 200*time.Millisecond, logger)
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		if secret, err = auth.RandomSecret(); err != nil {
			logger.WithError(err).Fatal("Failed to generate JWT secret")
		}
		logger.Warn("JWT_SECRET not set, tokens will not survive a restart")
	}
	authenticator := auth.NewAuthenticator(db, auth.NewTokenIssuer(secret, cfg.AccessTokenTTL), logger)

	if cfg.AdminUsername != "" {
		if err := seedAdmin(ctx, db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			logger.WithError(err).Fatal("Failed to seed admin user")
		}
		logger.WithField("username", cfg.AdminUsername).Info("Admin user ready")
	}

	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if cfg.QuoteWarmEvery > 0 {
		warmer := services.NewQuoteWarmer(db, quotes, fetcher, cfg.QuoteWarmEvery, logger)
		go warmer.Run(runCtx)
	}

	activity := services.NewActivityLogger(cfg.ActivityLogDir)
	contracts := services.NewContractService(db, quotes, fetcher, authenticator, activity, logger)

	router := controllers.SetupRouter(controllers.RouterConfig{
		AppName:     cfg.AppName,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
		Options:     controllers.NewOptionController(contracts, logger),
		Auth:        controllers.NewAuthController(authenticator, contracts, logger),
		Activity:    controllers.NewActivityController(activity),
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr": cfg.ListenAddr,
			"app":  cfg.AppName,
		}).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}
	logger.Info("Server exited")
}

func seedAdmin(ctx context.Context, users interfaces.UserStore, username, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return users.SaveUser(ctx, &interfaces.User{
		Username:       username,
		FullName:       username,
		HashedPassword: hash,
	})
}
