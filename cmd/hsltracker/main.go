package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hsltracker-data/internal/api"
	"github.com/hsltracker-data/internal/collector"
	"github.com/hsltracker-data/internal/common/config"
	"github.com/hsltracker-data/internal/common/db"
	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/common/maintenance"
	"github.com/hsltracker-data/internal/digitransit"
	"github.com/hsltracker-data/internal/mirror"
	"github.com/hsltracker-data/internal/stats"
	"github.com/hsltracker-data/internal/store"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic("Failed to load .env file: " + err.Error())
	}

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(
		logger.ParseLevel(cfg.Logging.Level),
		logger.ConsoleWriter(),
		logger.FileWriter(cfg.Logging.FilePath),
	)

	log.Info("HSL Tracker Data Service starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"digitransit_url", cfg.Digitransit.URL,
		"collection_interval", cfg.Collector.CollectionInterval.String(),
	)

	if err := cfg.Database.Validate(); err != nil {
		log.Fatal("Invalid database configuration", "error", err)
	}

	database, err := db.New(cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to apply database schema", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	st := store.New(database, log)
	aggregator := stats.NewAggregator(database, log)

	var wg sync.WaitGroup

	// Start the Digitransit collection loop
	client := digitransit.NewClient(cfg.Digitransit, log)
	service := digitransit.NewService(client, log)
	coll := collector.New(cfg.Collector, service, st, aggregator, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := coll.Start(ctx); err != nil {
			log.Error("Collector error", "error", err)
		}
	}()

	// Start the mirror sync loop (if a mirror URL is provided)
	var syncer *mirror.Syncer
	if cfg.Mirror.URL != "" {
		log.Info("Starting mirror sync", "url", cfg.Mirror.URL)
		syncer = mirror.New(cfg.Mirror, st, aggregator, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := syncer.Start(ctx); err != nil {
				log.Error("Mirror sync error", "error", err)
			}
		}()
	} else {
		log.Info("Mirror sync disabled (no mirror URL provided)")
	}

	// Start the retention scheduler
	cleanup := maintenance.NewCleanupScheduler(database, log, cfg.Retention)
	if err := cleanup.Start(ctx); err != nil {
		log.Fatal("Failed to start cleanup scheduler", "error", err)
	}

	// Start the HTTP API
	server := api.NewServer(st, aggregator, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("HTTP API listening", "addr", cfg.API.Listen)
		if err := server.Listen(cfg.API.Listen); err != nil {
			log.Error("HTTP API error", "error", err)
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")

	cancel()

	if err := server.Shutdown(); err != nil {
		log.Error("HTTP API shutdown error", "error", err)
	}
	cleanup.Stop()
	if err := coll.Stop(); err != nil {
		log.Error("Collector stop error", "error", err)
	}
	if syncer != nil {
		if err := syncer.Stop(); err != nil {
			log.Error("Mirror sync stop error", "error", err)
		}
	}

	wg.Wait()

	log.Info("HSL Tracker Data Service stopped")
}
