package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	CapturesReceived prometheus.Counter
	CaptureBytes     prometheus.Histogram
	DecodeErrors     prometheus.Counter
	EntitiesDecoded  prometheus.Counter
	EntitiesDropped  prometheus.Counter

	FilesWritten *prometheus.CounterVec // target label: archive|secondary|monitor
	WriteErrors  *prometheus.CounterVec

	BusPublished    prometheus.Counter
	BusPublishErrs  prometheus.Counter
	BusConnected    prometheus.Gauge
	PublishDuration prometheus.Histogram

	ReplayPublished prometheus.Counter
	ReplaySkipped   prometheus.Counter
	ReplayHalts     *prometheus.CounterVec // reason label: finished|error|cancelled

	CatalogErrors prometheus.Counter
}

func NewCollector(module string) *Collector {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"module": module}

	c := &Collector{
		reg: reg,
		CapturesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rtmonitor_captures_received_total",
			Help:        "Total raw feed captures received.",
			ConstLabels: labels,
		}),
		CaptureBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "rtmonitor_capture_bytes",
			Help:        "Size of raw feed captures.",
			Buckets:     prometheus.ExponentialBuckets(256, 2, 14),
			ConstLabels: labels,
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rtmonitor_decode_errors_total",
			Help:        "Captures whose feed envelope failed to decode.",
			ConstLabels: labels,
		}),
		EntitiesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rtmonitor_entities_decoded_total",
			Help:        "Vehicle position records decoded.",
			ConstLabels: labels,
		}),
		EntitiesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rtmonitor_entities_dropped_total",
			Help:        "Malformed entities dropped during decode.",
			ConstLabels: labels,
		}),
		FilesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "rtmonitor_files_written_total",
			Help:        "Capture files written, by target.",
			ConstLabels: labels,
		}, []string{"target"}),
		WriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "rtmonitor_write_errors_total",
			Help:        "Capture write or delete failures, by target.",
			ConstLabels: labels,
		}, []string{"target"}),
		BusPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rtmonitor_bus_published_total",
			Help:        "Total bus messages published.",
			ConstLabels: labels,
		}),
		BusPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rtmonitor_bus_publish_errors_total",
			Help:        "Total bus publish errors.",
			ConstLabels: labels,
		}),
		BusConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "rtmonitor_bus_connected",
			Help:        "1 if the bus connection is established, 0 otherwise.",
			ConstLabels: labels,
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "rtmonitor_publish_duration_seconds",
			Help:        "Duration to marshal and publish a bus message.",
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 15),
			ConstLabels: labels,
		}),
		ReplayPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rtmonitor_replay_published_total",
			Help:        "Archived captures replayed onto the bus.",
			ConstLabels: labels,
		}),
		ReplaySkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rtmonitor_replay_skipped_total",
			Help:        "Archived captures skipped because they failed to decode or publish.",
			ConstLabels: labels,
		}),
		ReplayHalts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "rtmonitor_replay_halts_total",
			Help:        "Replay engine halts, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		CatalogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rtmonitor_catalog_errors_total",
			Help:        "Failures recording captures in the catalog.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		c.CapturesReceived, c.CaptureBytes, c.DecodeErrors, c.EntitiesDecoded, c.EntitiesDropped,
		c.FilesWritten, c.WriteErrors,
		c.BusPublished, c.BusPublishErrs, c.BusConnected, c.PublishDuration,
		c.ReplayPublished, c.ReplaySkipped, c.ReplayHalts,
		c.CatalogErrors,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
