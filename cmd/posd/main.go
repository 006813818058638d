// Command posd is the local PedidoList daemon: it owns the embedded store
// and the sync engine, and serves the SPA on localhost.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pedidolist/backend/internal/config"
	"github.com/pedidolist/backend/internal/connectivity"
	"github.com/pedidolist/backend/internal/logging"
	"github.com/pedidolist/backend/internal/metrics"
	"github.com/pedidolist/backend/internal/store"
	syncpkg "github.com/pedidolist/backend/internal/sync"
	"github.com/pedidolist/backend/internal/sync/api"
	"github.com/pedidolist/backend/internal/sync/scheduler"
)

func main() {
	configPath := flag.String("config", "pedidolist.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("Failed to load configuration", err, nil)
		os.Exit(1)
	}

	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open local store", err, nil)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.NewMigrator(db.DB).Migrate(); err != nil {
		logging.Error("Failed to migrate schema", err, nil)
		os.Exit(1)
	}

	repo := store.NewRepository(db.DB)
	defer repo.Close()

	tokens := api.NewStaticToken(cfg.API.Token)
	client := api.NewClient(cfg.API.BaseURL, cfg.API.RequestTimeout.Std(), tokens)

	monitor := connectivity.NewMonitor(connectivity.Config{
		ProbeURL:      cfg.API.BaseURL + "/v1/health",
		ProbeInterval: cfg.Sync.ProbeInterval.Std(),
		Debounce:      cfg.Sync.Debounce.Std(),
		InitialOnline: true,
	})

	engine := syncpkg.NewEngine(repo, client)

	reporter := metrics.NewReporter()
	engine.AddObserver(reporter)

	hub := NewWSHub()
	engine.AddObserver(&hubObserver{hub: hub})

	sched := scheduler.NewScheduler(engine, monitor, repo, scheduler.Config{
		SyncInterval:  cfg.Sync.Interval.Std(),
		RetentionDays: cfg.Sync.RetentionDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor.Start(ctx)
	defer monitor.Stop()
	sched.Start(ctx)
	defer sched.Stop()

	// Feed settled transitions to the metrics reporter and the SPA
	go func() {
		transitions := monitor.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-transitions:
				reporter.OnTransition(t)
				hub.Broadcast("connectivity.changed", map[string]interface{}{
					"online": t.Online,
				})
			}
		}
	}()

	server := &Server{
		repo:      repo,
		engine:    engine,
		scheduler: sched,
		monitor:   monitor,
		reporter:  reporter,
		hub:       hub,
		retention: cfg.Sync.RetentionDays,
	}

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logging.Info("PedidoList daemon listening", map[string]interface{}{
		"addr":     cfg.Listen,
		"data_dir": cfg.DataDir,
		"api":      cfg.API.BaseURL,
	})

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("HTTP server failed", err, nil)
		os.Exit(1)
	}
}
