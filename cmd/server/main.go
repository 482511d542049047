package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/example/ride-lobby/internal/cache"
	"github.com/example/ride-lobby/internal/config"
	"github.com/example/ride-lobby/internal/events"
	httpapi "github.com/example/ride-lobby/internal/http"
	"github.com/example/ride-lobby/internal/lobby"
	"github.com/example/ride-lobby/internal/logging"
	"github.com/example/ride-lobby/internal/notify"
	"github.com/example/ride-lobby/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		// config errors are fatal before the logger exists
		panic(err)
	}
	log := logging.WithComponent(logging.NewLogger(cfg.LogLevel), "gateway")

	var store storage.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			if err := runMigrations(cfg.PGDSN); err != nil {
				log.Error("migration failed", "error", err)
				os.Exit(1)
			}
			log.Info("migrations applied")
		}
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	svc := lobby.NewService(store, log)
	svc.CodeAttempts = cfg.ShareCodeAttempts

	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.CacheTTL)
		defer rc.Close()
		svc.Cache = rc
	} else if cfg.CacheTTL > 0 {
		svc.Cache = cache.NewMemoryCache(cfg.CacheTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		svc.Events = kp
	}

	ws := notify.NewWSRegistry(log)
	notifiers := notify.Fanout{ws}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL, log))
	}
	svc.Notify = notifiers

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(svc, ws, log),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("ride-lobby gateway listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
