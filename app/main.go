package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/shelfwatch/app/api"
	"github.com/lysyi3m/shelfwatch/app/cache"
	"github.com/lysyi3m/shelfwatch/app/cfg"
	"github.com/lysyi3m/shelfwatch/app/database"
	"github.com/lysyi3m/shelfwatch/app/feed"
	"github.com/lysyi3m/shelfwatch/app/health"
	"github.com/lysyi3m/shelfwatch/app/notify"
	"github.com/lysyi3m/shelfwatch/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg.Debug)

	if err := appCfg.ApplyTimezone(); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", appCfg.Timezone, "error", err)
	}

	for _, warning := range appCfg.Warnings() {
		slog.Warn("Configuration warning", "warning", warning)
	}

	if err := run(appCfg); err != nil {
		slog.Error("Shelfwatch stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Shelfwatch", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	sourceRepo := database.NewSourceRepository(db)
	itemRepo := database.NewItemRepository(db)
	runRepo := database.NewRunRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if appCfg.SourcesDir != "" {
		seeds := feed.NewSourceSeeds(appCfg.SourcesDir)
		if err := seeds.Run(); err != nil {
			return fmt.Errorf("failed to load source seeds: %w", err)
		}
		seedTask := tasks.NewSeedSourcesTask(seeds.GetSeeds(), sourceRepo)
		seedTask.Start()
		if err := seedTask.Execute(ctx); err != nil {
			return err
		}
	}

	// Optional collaborators are assigned only when configured so that the
	// interfaces stay nil otherwise.
	var (
		leaser   tasks.Leaser = cache.NewMemoryLease()
		covers   tasks.CoverQueue
		notifier tasks.Notifier = notify.NewLogNotifier()
		redis    *cache.Cache
	)

	if appCfg.RedisAddr != "" {
		redis, err = cache.NewCache(ctx, appCfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redis.Close()
		leaser = redis
		covers = redis
	}

	if len(appCfg.KafkaBrokers) > 0 {
		kafka, err := notify.NewKafkaNotifier(appCfg.KafkaBrokers, appCfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		notifier = kafka
	}

	fetcher := feed.NewFetcher(&http.Client{}, appCfg.UserAgent, appCfg.FetchTimeout)

	orchestrator := tasks.NewOrchestrator(sourceRepo, itemRepo, runRepo, fetcher, feed.NewParser(),
		health.NewMachine(appCfg.FailureThreshold), leaser, covers, notifier, tasks.Options{
			PollingEnabled: appCfg.PollingEnabled,
			WorkerCount:    appCfg.WorkerCount,
			SourceBudget:   appCfg.SourceBudget,
			MaxItems:       appCfg.MaxItems,
		})

	scheduler := tasks.NewScheduler(orchestrator, appCfg.Schedule, appCfg.RunTimeout)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	handler := api.NewHandler(sourceRepo, itemRepo, runRepo,
		feed.NewGenerator(appCfg.BaseUrl, appCfg.Version), orchestrator, scheduler)
	if redis != nil {
		handler.WithCache(redis)
	}

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey, appCfg.Version),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: appCfg.RunTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server",
			"port", appCfg.Port,
			"polling", appCfg.PollingEnabled,
			"schedule", appCfg.Schedule,
			"workers", appCfg.WorkerCount)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErrChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shelfwatch shutdown complete")
	return nil
}
