package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"rtmonitor/internal/catalog"
	"rtmonitor/internal/config"
	"rtmonitor/internal/replay"
)

// feedindex walks the archive between REPLAY_START and REPLAY_FINISH and
// records every capture in the catalog named by CATALOG_DSN.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.CatalogDSN == "" {
		log.Fatalf("config error: CATALOG_DSN is required")
	}
	win, err := replay.NewWindow(cfg.ReplayStart, cfg.ReplayFinish, 0)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := catalog.Open(ctx, cfg.CatalogDSN)
	if err != nil {
		log.Fatalf("catalog error: %v", err)
	}
	defer store.Close()

	cursor := replay.NewCursor(cfg.ArchiveRoot, cfg.FileSuffix, cfg.Location, win)
	n, err := replay.Index(ctx, cursor, store, cfg.ModuleID)
	log.Printf("indexed %d captures from %s", n, cfg.ArchiveRoot)
	if err != nil {
		store.Close()
		log.Fatalf("index error: %v", err)
	}
}
