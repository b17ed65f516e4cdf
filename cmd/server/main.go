package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fleet-dashboard/internal/backend"
	"fleet-dashboard/internal/config"
	"fleet-dashboard/internal/database"
	"fleet-dashboard/internal/handlers"
	"fleet-dashboard/internal/logger"
	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/observability"
	"fleet-dashboard/internal/report"
	"fleet-dashboard/internal/server"
	"fleet-dashboard/internal/session"
	"fleet-dashboard/internal/storage"
	"fleet-dashboard/internal/translation"
)

func main() {
	cfg := config.Load()

	lg, err := logger.New(cfg.LogLevel, zap.String("service", "fleet-dashboard"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	otelShutdown, err := observability.Init("fleet-dashboard", cfg.MetricsAddr, lg)
	if err != nil {
		lg.Fatal("observability init failed", zap.Error(err))
	}

	if cfg.DBDSN != "" {
		database.Init(cfg.DBDSN, lg)
	}
	store := openStorage(cfg, lg)

	client := backend.New(cfg.BackendURL,
		backend.WithLogger(lg),
		backend.WithTimeout(cfg.HTTPTimeout),
	)
	translator := translation.New(client, cfg.TranslationTTL, lg)

	var geocoder report.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geocoder = backend.NewGeocoder(cfg.GeocoderURL, cfg.GeocoderAPIKey, lg)
	}
	var mailer report.Mailer
	if cfg.SMTP.Host != "" {
		mailer = report.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From)
	}
	reports := report.NewService(client, geocoder, mailer, lg)

	sealer := session.NewSealer(cfg.SessionSecret)
	registry := session.NewRegistry(cfg.TabIdleTTL, func(device, tab string) *session.Manager {
		return session.NewManager(session.Options{
			Device:         device,
			Tab:            tab,
			Storage:        store,
			Auth:           client,
			SettingsRemote: client,
			Sealer:         sealer,
			Lead:           cfg.RefreshLead,
			Logger:         lg,
			Audit: func(actor string, role models.UserRole, device, action, details string) {
				go database.CreateAuditLog(actor, role, device, action, details)
			},
		})
	})

	api := handlers.New(client, translator, reports, lg)
	r := server.NewRouter(cfg, api, registry, lg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}
	err = server.Run(srv, lg, func(ctx context.Context) {
		registry.Close()
		translator.Close()
		if err := store.Close(); err != nil {
			lg.Warn("closing storage failed", zap.Error(err))
		}
		if err := otelShutdown(ctx); err != nil {
			lg.Warn("observability shutdown failed", zap.Error(err))
		}
	})
	if err != nil {
		lg.Fatal("server error", zap.Error(err))
	}
}

func openStorage(cfg *config.Config, lg *zap.Logger) storage.Storage {
	switch cfg.StorageBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			lg.Fatal("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		lg.Info("session storage: redis", zap.String("addr", cfg.RedisAddr))
		return storage.NewRedis(rdb, "")
	case "memory":
		lg.Warn("session storage: memory, sessions do not survive a restart")
		return storage.NewMemory()
	default:
		lg.Info("session storage: postgres")
		return storage.WithLocalEvents(storage.NewGorm(database.DB))
	}
}
