package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/roamjet/backend/internal/airalo"
	"github.com/roamjet/backend/internal/cache"
	"github.com/roamjet/backend/internal/config"
	"github.com/roamjet/backend/internal/database"
	"github.com/roamjet/backend/internal/geoip"
	"github.com/roamjet/backend/internal/repository"
	"github.com/roamjet/backend/internal/server"
	"github.com/roamjet/backend/internal/service"
	"github.com/roamjet/backend/internal/storage"
	"github.com/roamjet/backend/internal/wise"
	"github.com/roamjet/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	redisCache, err := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	if err != nil {
		logr.Warn("redis unavailable, token caching disabled", "err", err)
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	configRepo := repository.NewConfigRepository(db)

	airaloClient := airalo.NewClient(cfg.AiraloClientID, cfg.AiraloClientSecret, cfg.AiraloBaseURL, cfg.DataPlansEnvironment, redisCache, logr)
	detector := geoip.NewDetector(logr)

	var uploader *storage.Uploader
	if cfg.S3Bucket != "" {
		uploader, err = storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
	} else {
		logr.Info("s3 not configured, qr images served as data urls")
	}

	var wiseClient *wise.Client
	if cfg.WiseAPIToken != "" {
		wiseClient = wise.NewClient(cfg.WiseAPIToken, cfg.WiseBaseURL, logr)
		logr.Info("wise client configured", "environment", cfg.WiseEnvironment)
	} else {
		logr.Info("wise not configured, payout endpoints disabled")
	}

	clientService := service.NewClientService(logr, clientRepo, detector)
	catalogService := service.NewCatalogService(cfg, logr, catalogRepo, configRepo, airaloClient)
	esimService := service.NewEsimService(cfg, logr, orderRepo, userRepo, catalogRepo, configRepo, airaloClient, uploader)
	registrationService := service.NewRegistrationService(logr, registrationRepo)
	stripeService := service.NewStripeService(cfg, logr, userRepo, catalogRepo)

	srv := server.NewServer(cfg.ListenAddr, logr, clientService, catalogService, esimService, registrationService, stripeService, wiseClient)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
