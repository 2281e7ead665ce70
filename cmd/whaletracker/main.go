package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/shnfxl/polymarket-whale-tracker/internal/alerts"
	"github.com/shnfxl/polymarket-whale-tracker/internal/config"
	"github.com/shnfxl/polymarket-whale-tracker/internal/detector"
	"github.com/shnfxl/polymarket-whale-tracker/internal/metrics"
	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/clob"
	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/dataapi"
	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/gammaapi"
	"github.com/shnfxl/polymarket-whale-tracker/internal/state"
	"github.com/shnfxl/polymarket-whale-tracker/internal/storage"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	log.Info("Starting whale tracker service...")

	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		log.Info("Loaded environment from .env file")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"environment":       cfg.Environment,
		"min_whale_bet_usd": cfg.MinWhaleBetUSD,
		"poll_interval":     cfg.PollInterval.String(),
		"alert_mode":        cfg.AlertMode,
	}).Info("Configuration loaded")

	// Database is optional; the detector runs without an archive
	var db *storage.DB
	if cfg.DatabaseDSN != "" {
		db, err = storage.New(cfg, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		if err := db.AutoMigrate(); err != nil {
			log.WithError(err).Fatal("Failed to run database migrations")
		}
		log.Info("Database connected")
	} else {
		log.Info("No DATABASE_DSN configured, running without candidate archive")
	}

	// Initialize API clients
	dataClient := dataapi.NewClient(cfg, log)
	gammaClient := gammaapi.NewClient(cfg, log)
	clobClient := clob.NewClient(cfg)

	log.Info("API clients initialized")

	// Processed-trade dedup state survives restarts via the state file
	store := state.NewFileStore(cfg.StateFilePath, cfg.ProcessedTradesMax, cfg.ProcessedTradesTrimTo)

	// Initialize alert sender
	alertSender := alerts.NewFromConfig(cfg, log)

	log.WithField("alert_mode", cfg.AlertMode).Info("Alert sender initialized")

	// Initialize detector
	det := detector.New(cfg, log, dataClient, gammaClient, clobClient, store)

	// Start HTTP server (health + metrics)
	go startHTTPServer(cfg.HTTPPort, log)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	log.Info("Starting scan loop")

	// Scan immediately on startup
	runScan(ctx, det, alertSender, db, log)

	for {
		select {
		case <-ticker.C:
			runScan(ctx, det, alertSender, db, log)
		case sig := <-sigChan:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
			log.Info("Graceful shutdown complete")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, shutting down")
			return
		}
	}
}

func runScan(ctx context.Context, det *detector.Detector, sender alerts.Sender, db *storage.DB, log *logrus.Logger) {
	started := time.Now()
	candidates := det.Scan(ctx)

	for _, c := range candidates {
		if err := sender.Send(ctx, c); err != nil {
			log.WithError(err).WithField("type", c.Type).Error("Failed to send alert")
		}
		if db != nil {
			if err := db.InsertCandidate(ctx, c); err != nil {
				log.WithError(err).Error("Failed to archive candidate")
			}
		}
	}

	if db != nil {
		if err := db.InsertScan(ctx, started, time.Since(started), det.GateCounterSnapshot()); err != nil {
			log.WithError(err).Error("Failed to archive scan stats")
		}
	}
}

func startHTTPServer(port int, log *logrus.Logger) {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy"}`)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready"}`)
	})

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.WithField("port", port).Info("Starting HTTP server (health + metrics)")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("HTTP server failed")
	}
}
