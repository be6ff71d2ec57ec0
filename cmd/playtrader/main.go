package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"playtrader/internal/broker"
	"playtrader/internal/config"
	"playtrader/internal/engine"
	"playtrader/internal/history"
	"playtrader/internal/httpapi"
	"playtrader/internal/monitor"
	"playtrader/internal/playstore"
	"playtrader/internal/util"
)

func main() {
	// Credentials may live in a local .env; absence is fine.
	_ = godotenv.Load()

	cfgPath := "config/playtrader.yaml"
	if p := os.Getenv("PLAYTRADER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	store, err := playstore.NewStore(cfg.Storage.PlaysDir, logger)
	if err != nil {
		log.Fatalf("opening play store: %v", err)
	}
	hist, err := history.NewStore(cfg.Storage.HistoryPath)
	if err != nil {
		log.Fatalf("opening history store: %v", err)
	}
	defer hist.Close()

	var b broker.Broker
	var md broker.MarketData
	if cfg.PaperMode && cfg.Alpaca.APIKey == "" {
		sim := broker.NewSimulatorBroker(100_000, 100_000)
		b, md = sim, sim
		logger.Warn("no broker credentials, running against the simulator")
	} else {
		alp := broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret,
			cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL, cfg.Alpaca.QuoteRatePerMin)
		b, md = alp, alp
	}

	machine := engine.NewStateMachine(store, hist, b, logger)
	exposure := engine.NewExposureAggregator(store, logger)
	gate := engine.NewRiskGate(cfg.Risk, b, exposure, logger)
	eval := engine.NewEvaluator(logger)
	mon := monitor.New(store, machine, eval, gate, b, md, cfg.Monitoring, logger)

	api := httpapi.NewServer(store, hist, gate, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("query API listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		logger.Info("monitor starting",
			"poll_interval", cfg.Monitoring.PollInterval,
			"broker", b.Name(), "paper_mode", cfg.PaperMode)
		if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("monitor stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
