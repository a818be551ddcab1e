package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tiercache/internal/common/logging"
	"tiercache/internal/config"
	"tiercache/internal/diag"
	"tiercache/internal/maintenance"
	"tiercache/pkg/stores"
	"tiercache/pkg/tiercache"
)

func main() {
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()
	log := logging.GetGlobalLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", err)
		os.Exit(1)
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Error("failed to initialize backing store", err,
			logging.String("store_type", string(cfg.StoreType)))
		os.Exit(1)
	}
	defer store.Close()

	cache := tiercache.New(store, tiercache.Config{
		MaxEntries: cfg.MaxEntries,
		DefaultTTL: cfg.DefaultTTL,
		RootKey:    cfg.RootKey,
		Debounce:   cfg.Debounce,
		Logger:     log,
	})

	if cfg.JanitorEnabled {
		janitor, err := maintenance.NewJanitor(cache, cfg.JanitorSchedule, log)
		if err != nil {
			log.Error("failed to schedule janitor", err)
			os.Exit(1)
		}
		janitor.Start()
		defer janitor.Stop()
	}

	handler := diag.NewHandler(cache, log)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler.Router(),
	}

	go func() {
		log.Info("diagnostics server listening",
			logging.String("port", cfg.Port),
			logging.String("store", store.Name()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("diagnostics server failed", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", err)
	}
	cache.Close(ctx)
}

func buildStore(cfg *config.Config) (stores.KVStore, error) {
	switch cfg.StoreType {
	case config.StoreMemory:
		return stores.NewMemoryStore(cfg.QuotaBytes), nil
	case config.StoreFile:
		return stores.NewFileStore(cfg.FilePath, cfg.QuotaBytes)
	case config.StoreSQLite:
		return stores.NewSQLiteStore(cfg.SQLitePath, cfg.MaxRows)
	case config.StorePostgres:
		return stores.NewPostgresStore(cfg.PostgresDSN, cfg.MaxRows)
	case config.StoreRedis:
		return stores.NewRedisStore(&stores.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.StoreType)
	}
}
