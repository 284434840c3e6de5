package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/database"
	"github.com/certen/independant-validator/pkg/ledger"
	"github.com/certen/independant-validator/pkg/orchestrator"
	"github.com/certen/independant-validator/pkg/server"
)

func main() {
	var (
		relayConfigPath = flag.String("relay-config", "", "Path to relay topology YAML (overrides RELAY_CONFIG_PATH env var)")
		devMode         = flag.Bool("dev", false, "Relax configuration validation for local development")
		showHelp        = flag.Bool("help", false, "Show help message")
		setupEth        = flag.Bool("setup-eth", false, "Seed the hub's initial consensus state on every configured spoke, then exit")
		setupPara       = flag.Bool("setup-para", false, "Seed every configured spoke's initial consensus state on the hub, then exit")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}

	logger := log.New(os.Stdout, "relayer: ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *relayConfigPath != "" {
		cfg.RelayConfigPath = *relayConfigPath
	}

	if *devMode {
		if err := cfg.ValidateForDevelopment(); err != nil {
			logger.Fatalf("config: %v", err)
		}
	} else if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	relayCfg, err := config.LoadRelayConfig(cfg.RelayConfigPath)
	if err != nil {
		logger.Fatalf("load relay topology %s: %v", cfg.RelayConfigPath, err)
	}

	dbClient, err := database.NewClient(cfg, database.WithLogger(logger))
	if err != nil {
		logger.Fatalf("connect to database: %v", err)
	}
	defer dbClient.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := dbClient.MigrateUp(migrateCtx); err != nil {
		cancelMigrate()
		logger.Fatalf("run migrations: %v", err)
	}
	cancelMigrate()

	ledgerStore := ledger.NewStore(dbClient)
	ledgerHandlers := server.NewLedgerHandlers(ledgerStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch, err := orchestrator.New(ctx, relayCfg, ledgerStore, logger)
	if err != nil {
		logger.Fatalf("build orchestrator: %v", err)
	}

	if *setupEth || *setupPara {
		if err := orch.SeedConsensus(ctx, *setupEth, *setupPara); err != nil {
			logger.Fatalf("seed consensus state: %v", err)
		}
		logger.Println("consensus seeding complete, exiting")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, err := dbClient.Health(r.Context())
		body := map[string]interface{}{
			"status": "ok",
			"spokes": len(orch.Spokes()),
		}
		if err != nil || status == nil || !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			body["status"] = "degraded"
			if status != nil {
				body["database_error"] = status.Error
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/ledger/unreimbursed", ledgerHandlers.HandleUnreimbursed)
	mux.HandleFunc("/ledger/status", ledgerHandlers.HandleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var serveErr error
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		logger.Printf("http server listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr = err
		}
	}()

	orchDone := make(chan error, 1)
	go func() {
		orchDone <- orch.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-orchDone:
		logger.Printf("orchestrator stopped: %v", err)
	}

	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown: %v", err)
	}
	<-serveDone
	if serveErr != nil {
		logger.Printf("http server error: %v", serveErr)
	}

	<-orchDone
	logger.Println("shutdown complete")
}
