package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"continuouscare/internal/api"
	"continuouscare/internal/config"
	"continuouscare/internal/db"
	"continuouscare/internal/logging"
	"continuouscare/internal/processor"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed:", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatal("Logger init failed:", err)
	}

	// Connect to DB
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		log.Fatal("DB connect failed:", err)
	}
	defer dbConn.Close()

	// Start the processor and one aggregation loop per registered client
	proc := processor.New(dbConn, logger, cfg)
	if err := proc.Bootstrap(context.Background()); err != nil {
		logger.Errorf("Bootstrap failed: %v", err)
		log.Fatal("Bootstrap failed:", err)
	}

	// Start API server
	r := api.NewRouter(proc, logger, cfg)
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := r.Run(cfg.API.Port); err != nil {
			logger.Errorf("API run failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Infof("Shutting down...")
	proc.Close()
	logger.Infof("Service stopped")
}
