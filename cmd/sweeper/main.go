package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-lobby/internal/config"
	"github.com/example/ride-lobby/internal/housekeeping"
	"github.com/example/ride-lobby/internal/logging"
	"github.com/example/ride-lobby/internal/storage"
)

var (
	sweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_runs_total",
		Help: "Total sweep attempts",
	})
	ridesPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_rides_purged_total",
		Help: "Total terminal rides removed",
	})
	sweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_errors_total",
		Help: "Total sweeps that failed after retries",
	})
)

func init() {
	prometheus.MustRegister(sweepRuns, ridesPurged, sweepErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadSweeperConfig()
	if err != nil {
		panic(err)
	}
	log := logging.WithComponent(logging.NewLogger(cfg.LogLevel), "sweeper")

	if cfg.PGDSN == "" {
		log.Error("PG_DSN is required, the sweeper only reclaims durable storage")
		os.Exit(1)
	}
	pg, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := pg.Ping(r.Context()); err != nil {
				http.Error(w, "postgres not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := &housekeeping.Sweeper{
		Store:     &countingPurger{inner: pg},
		Retention: cfg.Retention,
		Interval:  cfg.Interval,
		Log:       log,
	}

	log.Info("sweeper running", "retention", cfg.Retention, "interval", cfg.Interval)
	sweeper.Run(ctx)
	log.Info("shutting down sweeper")
}

// countingPurger wraps the store with retry/backoff and sweep metrics.
type countingPurger struct {
	inner housekeeping.Purger
}

func (c *countingPurger) PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	sweepRuns.Inc()
	n, err := purgeWithRetry(ctx, c.inner, olderThan, 3, 200*time.Millisecond)
	if err != nil {
		sweepErrors.Inc()
		return 0, err
	}
	ridesPurged.Add(float64(n))
	return n, nil
}

// purgeWithRetry retries transient storage failures with exponential backoff.
func purgeWithRetry(ctx context.Context, p housekeeping.Purger, olderThan time.Time, attempts int, delay time.Duration) (int64, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		n, err := p.PurgeTerminal(ctx, olderThan)
		if err == nil {
			return n, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return 0, lastErr
}
