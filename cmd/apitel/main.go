package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platformbuilds/apitel/internal/aggregator"
	"github.com/platformbuilds/apitel/internal/config"
	"github.com/platformbuilds/apitel/internal/gateway"
	"github.com/platformbuilds/apitel/internal/ingest"
	"github.com/platformbuilds/apitel/internal/logstore"
	"github.com/platformbuilds/apitel/internal/receivers"
)

// These can be overridden at build time using -ldflags:
//
//	-ldflags="-X main.version=$(git describe --tags --dirty --always) -X main.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// -------- flags & env --------
	defaultCfg := envOr("APITEL_CONFIG", "config.yaml")
	var (
		cfgPath     = flag.String("config", defaultCfg, "Path to the config YAML")
		metricsAddr = flag.String("metrics.addr", envOr("APITEL_METRICS_ADDR", ":9090"), "Prometheus metrics HTTP listen address")
		logTime     = flag.Bool("log.timestamps", true, "Include timestamps in log output")
	)
	flag.Parse()

	if *logTime {
		log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	} else {
		log.SetFlags(0)
	}
	log.Printf("apitel %s (commit %s)", version, commit)

	// -------- load config --------
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("loaded config from %s (store=%s, %d receiver(s))", *cfgPath, cfg.Store.Type, len(cfg.Receivers))

	// -------- root context & signals --------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// -------- wire the pipeline --------
	store, err := logstore.New(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("log store init failed: %v", err)
	}
	defer store.Close()

	ing := ingest.New(store, cfg.Ingest, prometheus.DefaultRegisterer)
	agg := aggregator.New(store)
	gw := gateway.New(cfg.Gateway, ing, agg)

	rx, err := receivers.Build(cfg, ing)
	if err != nil {
		log.Fatalf("receiver init failed: %v", err)
	}

	// -------- metrics & health server --------
	ready := &atomic.Bool{}
	metricsSrv := &http.Server{
		Addr:              *metricsAddr,
		Handler:           setupMetricsMux(ready),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("metrics: listening on %s", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics: server error: %v", err)
		}
	}()

	// -------- run (blocking until ctx done) --------
	var g errgroup.Group

	g.Go(func() error {
		ready.Store(true)
		handler := handlers.LoggingHandler(os.Stdout, gw.Router())
		if err := gw.Start(ctx, handler); err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	})

	for key, r := range rx {
		key, r := key, r
		g.Go(func() error {
			if err := r.Start(ctx); err != nil {
				log.Printf("[receiver:%s] error: %v", key, err)
			}
			return nil
		})
	}

	// signal watcher
	g.Go(func() error {
		select {
		case s := <-sigCh:
			log.Printf("signal received: %s, initiating graceful shutdown", s)
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	// graceful shutdown of metrics server when ctx ends
	g.Go(func() error {
		<-ctx.Done()
		shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shCancel()
		if err := metricsSrv.Shutdown(shCtx); err != nil {
			log.Printf("metrics: shutdown error: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Printf("shutdown with error: %v", err)
	} else {
		log.Printf("shutdown complete")
	}
}

// setupMetricsMux registers Prometheus /metrics plus simple health endpoints.
func setupMetricsMux(ready *atomic.Bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})
	return mux
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
