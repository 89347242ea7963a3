// Command duskwatchd runs the DuskWatch threat-intelligence daemon: the
// monitor scheduler and the HTTP API surface over one shared in-memory
// store, following the config-load -> wire -> serve -> graceful-shutdown
// shape this project's crawler entrypoint uses for its own CLI.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duskwatch/duskwatch/internal/api"
	"github.com/duskwatch/duskwatch/internal/config"
	"github.com/duskwatch/duskwatch/internal/correlate"
	"github.com/duskwatch/duskwatch/internal/download"
	"github.com/duskwatch/duskwatch/internal/fetch"
	"github.com/duskwatch/duskwatch/internal/fileanalysis"
	"github.com/duskwatch/duskwatch/internal/logging"
	"github.com/duskwatch/duskwatch/internal/orchestrator"
	"github.com/duskwatch/duskwatch/internal/scheduler"
	"github.com/duskwatch/duskwatch/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.New("ERROR", false, os.Stderr).Error("config load failed", logging.Fields{"error": err.Error()})
		return 2
	}

	logger := logging.New(cfg.LogLevel, cfg.LogJSON, os.Stderr)
	logger.Info("starting duskwatchd", logging.Fields{
		"api_listen_addr": cfg.APIListenAddr,
		"anon_proxy_addr": cfg.AnonProxyAddr,
		"store_uri":       cfg.StoreURI,
	})

	fetcher, err := fetch.New(fetch.Config{
		AnonProxyAddr: cfg.AnonProxyAddr,
		Timeout:       cfg.RequestTimeout,
		MaxBodyBytes:  10 * 1024 * 1024,
		UserAgent:     fetch.DefaultConfig().UserAgent,
	}, logger)
	if err != nil {
		logger.Error("fetcher init failed", logging.Fields{"error": err.Error()})
		return 2
	}

	downloader := download.New(fetcher, cfg.DownloadMaxBytes)
	analyzer := fileanalysis.NewDefault()
	dataStore := store.New(cfg.MonitorCapPerOwner)
	correlator := correlate.New(dataStore)

	orch := orchestrator.New(orchestrator.Config{
		Fetcher:             fetcher,
		Downloader:          downloader,
		Analyzer:            analyzer,
		Correlator:          correlator,
		Store:               dataStore,
		Logger:              logger,
		MaxFileLinksPerScan: cfg.MaxFileLinksPerScan,
	})

	sched := scheduler.New(dataStore, orch, logger, scheduler.Config{
		TickInterval: cfg.SchedulerTickInterval,
		PoolSize:     cfg.MonitorPoolSize,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	server := api.New(dataStore, orch, analyzer, logger)
	httpServer := &http.Server{
		Addr:         cfg.APIListenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", logging.Fields{"addr": cfg.APIListenAddr})
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", logging.Fields{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", logging.Fields{"error": err.Error()})
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown failed", logging.Fields{"error": err.Error()})
	}

	logger.Info("duskwatchd stopped", nil)
	return 0
}
