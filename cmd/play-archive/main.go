// One-shot tool: compact CLOSED and EXPIRED plays into the yearly Parquet
// archive and remove them from the live store.
//
// Usage:
//
//	go run cmd/play-archive/main.go
package main

import (
	"log"
	"os"

	"playtrader/internal/archive"
	"playtrader/internal/config"
	"playtrader/internal/playstore"
	"playtrader/internal/util"
)

func main() {
	cfgPath := "config/playtrader.yaml"
	if p := os.Getenv("PLAYTRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, "text")
	util.SetDefault(logger)

	store, err := playstore.NewStore(cfg.Storage.PlaysDir, logger)
	if err != nil {
		log.Fatalf("opening play store: %v", err)
	}

	arch := archive.NewArchiver(store, cfg.Storage.ArchiveDir, logger)
	n, err := arch.Run()
	if err != nil {
		log.Fatalf("archiving plays: %v", err)
	}

	if n == 0 {
		logger.Info("no terminal plays to archive")
	} else {
		logger.Info("archive complete", "plays", n)
	}
}
