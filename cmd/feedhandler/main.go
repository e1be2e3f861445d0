package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rtmonitor/internal/bus"
	"rtmonitor/internal/capture"
	"rtmonitor/internal/catalog"
	"rtmonitor/internal/config"
	"rtmonitor/internal/ingest"
	"rtmonitor/internal/metrics"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load configuration from .env, CONFIG_FILE and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.ListenAddr == "" && cfg.FeedURL == "" {
		log.Fatalf("config error: neither LISTEN_ADDR nor FEED_URL is set, no feed source")
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" || cfg.ListenAddr != "" {
		mcol = metrics.NewCollector(cfg.ModuleName)
	}
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	// Initialize NATS publisher
	nb, err := bus.NewNATS(cfg.NATSURL, cfg.BusAddress, cfg.LogBusAddresses, metrics.WrapPublisher(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer nb.Close()

	// Optional capture catalog
	var rec ingest.Recorder
	if cfg.CatalogDSN != "" {
		store, err := catalog.Open(ctx, cfg.CatalogDSN)
		if err != nil {
			log.Fatalf("catalog error: %v", err)
		}
		defer store.Close()
		rec = store
	}

	writer := capture.NewWriter(cfg.ArchiveRoot, cfg.SecondaryRoot, cfg.MonitorRoot, cfg.FileSuffix, mcol)
	svc := ingest.NewService(cfg, writer, nb, rec, mcol)

	hb := bus.NewHeartbeat(nb, cfg.StatusAddress, cfg.HeartbeatInterval, cfg.ModuleName, cfg.ModuleID, cfg.StatusAmberSeconds, cfg.StatusRedSeconds)
	go hb.Run(ctx)

	var srv *http.Server
	if cfg.ListenAddr != "" {
		srv = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           ingest.Handler(svc, cfg.MaxFeedBytes, mcol),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				// shut down through the normal path so pending writes land
				log.Printf("feed listener error: %v", err)
				cancel()
			}
		}()
		log.Printf("feed listener on %s: POST /%s/%s", cfg.ListenAddr, cfg.ModuleName, cfg.ModuleID)
	}

	done := make(chan struct{})
	if cfg.FeedURL != "" {
		log.Printf("polling %s every %v", cfg.FeedURL, cfg.PollInterval)
		go func() {
			ingest.NewPoller(svc, cfg.FeedURL, cfg.PollInterval, cfg.MaxFeedBytes).Run(ctx)
			close(done)
		}()
	} else {
		close(done)
	}

	log.Printf("%s.%s running, archive %s (tz %s)", cfg.ModuleName, cfg.ModuleID, cfg.ArchiveRoot, cfg.Location)

	// Block until context cancelled
	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	<-done
	// let in-flight archive writes land before exiting
	writer.Wait()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Println("shutdown complete")
}
