package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinsettle/internal/adapter/httpapi"
	"coinsettle/internal/adapter/repository/postgres"
	"coinsettle/internal/adapter/settlement"
	"coinsettle/internal/config"
	"coinsettle/internal/usecase/ledger"
	"coinsettle/internal/usecase/processor"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 2. Setup database
	db, err := postgres.NewDB(cfg.DBConnStr)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	// 3. Initialize repositories and the settlement client
	ledgerRepo := postgres.NewLedgerRepository(db)
	jobRepo := postgres.NewJobRepository(db)
	settlementClient := settlement.NewClient(cfg.SettlementBaseURL, cfg.SettlementTimeout)

	// 4. Initialize the processor, recover unfinished jobs, start draining
	proc := processor.New(jobRepo, settlementClient, cfg.JobInterval, cfg.QueueCapacity, logger)
	failed, err := proc.Recover(ctx)
	if err != nil {
		log.Fatalf("Failed to recover unfinished jobs: %v", err)
	}
	logger.Info("job recovery finished", "failed", failed)

	go proc.Run(ctx)

	// 5. Initialize the ledger service and the HTTP API
	ledgerService := ledger.NewService(ledgerRepo, settlementClient, proc, cfg.ConversionRate, logger)
	router := httpapi.NewRouter(httpapi.NewHandler(ledgerService, jobRepo, logger), cfg.APIToken)

	server := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.APIAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	// Graceful shutdown
	waitForShutdown(server, proc, cancel, logger)
}

// waitForShutdown waits for SIGTERM or SIGINT, stops accepting API requests
// and submissions, then lets the drain loop wind down.
func waitForShutdown(server *http.Server, proc *processor.Processor, cancel context.CancelFunc, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String())

	// New submissions are rejected first so the queue only shrinks.
	proc.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}

	cancel()
	logger.Info("server stopped")
}
