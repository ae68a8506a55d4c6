package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/hearthkeep/homerules/internal/logger"
	"github.com/hearthkeep/homerules/rules"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	log := logger.Logger

	var db *sql.DB
	var store rules.RuleStore
	var occurrences rules.OccurrenceStore
	var recorder rules.ExecutionRecorder

	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to open database", "error", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatal("failed to ping database", "error", err)
		}
		pg := rules.NewPostgresStore(db, rules.NewRegistry())
		store, occurrences, recorder = pg, pg, pg
		log.Info("using postgres storage")
	} else {
		mem := rules.NewInMemoryStore()
		store, occurrences, recorder = mem, mem, mem
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	registry := rules.NewRegistry()
	cache := rules.NewInMemoryRulesCache(rules.CacheConfig{TTL: cfg.CacheTTL})
	executor := rules.NewExecutor(loggingCollaborators(log), log).WithTimeout(cfg.ActionTimeout)
	dispatcher := rules.NewDispatcher(store, cache, recorder, executor, log)
	engine := rules.NewEngine(store, cache, recorder, dispatcher, registry, log)
	scheduler := rules.NewScheduler(store, occurrences, dispatcher, log).WithInterval(cfg.SchedulerInterval)

	server := NewServer(cfg, db, engine, scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go scheduler.Run(ctx)
	if cfg.RetentionDays > 0 {
		go runRetentionPruner(ctx, recorder, cfg.RetentionDays)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		log.Error("logger shutdown error", "error", err)
	}
	log.Info("server stopped")
}

// runRetentionPruner deletes old execution records once a day.
func runRetentionPruner(ctx context.Context, recorder rules.ExecutionRecorder, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	prune := func() {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		pruned, err := recorder.PruneBefore(ctx, cutoff)
		if err != nil {
			logger.Error("failed to prune execution records", "error", err)
			return
		}
		if pruned > 0 {
			logger.Info("pruned execution records", "count", pruned, "cutoff", cutoff)
		}
	}

	prune()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
