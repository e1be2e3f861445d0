package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rtmonitor/internal/bus"
	"rtmonitor/internal/config"
	"rtmonitor/internal/metrics"
	"rtmonitor/internal/replay"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	win, err := replay.NewWindow(cfg.ReplayStart, cfg.ReplayFinish, cfg.ReplayRate())
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var mcol *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.ModuleName)
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	nb, err := bus.NewNATS(cfg.NATSURL, cfg.BusAddress, cfg.LogBusAddresses, metrics.WrapPublisher(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer nb.Close()

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	hb := bus.NewHeartbeat(nb, cfg.StatusAddress, cfg.HeartbeatInterval, cfg.ModuleName, cfg.ModuleID, cfg.StatusAmberSeconds, cfg.StatusRedSeconds)
	go hb.Run(hbCtx)

	log.Printf("replaying %s from %s to %s every %v on %s",
		cfg.ArchiveRoot,
		time.Unix(win.Start, 0).In(cfg.Location).Format(time.RFC3339),
		time.Unix(win.Finish, 0).In(cfg.Location).Format(time.RFC3339),
		win.Rate, cfg.BusAddress)

	cursor := replay.NewCursor(cfg.ArchiveRoot, cfg.FileSuffix, cfg.Location, win)
	engine := replay.NewEngine(cursor, nb, cfg.BusAddress, cfg.ModuleName, cfg.ModuleID, win.Rate, mcol)
	runErr := engine.Run(ctx)

	stats := engine.Stats()
	log.Printf("replay stopped: published=%d skipped=%d", stats.Published, stats.Skipped)

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		// deferred cleanup is skipped by Fatalf
		hbCancel()
		nb.Close()
		log.Fatalf("replay error: %v", runErr)
	}
	log.Println("shutdown complete")
}
