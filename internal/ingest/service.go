// Package ingest turns raw feed captures into durable archive files and live
// position messages on the bus.
package ingest

import (
	"context"
	"log"
	"time"

	"rtmonitor/internal/bus"
	"rtmonitor/internal/capture"
	"rtmonitor/internal/catalog"
	"rtmonitor/internal/config"
	"rtmonitor/internal/feed"
	"rtmonitor/internal/metrics"
)

// Recorder indexes archived captures. *catalog.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, e catalog.Entry) error
}

type Service struct {
	moduleName string
	moduleID   string
	address    string
	loc        *time.Location

	writer  *capture.Writer
	bus     bus.Bus
	catalog Recorder
	metrics *metrics.Collector

	now func() time.Time
}

// NewService wires the ingestion path. rec and m may be nil.
func NewService(cfg *config.Config, w *capture.Writer, b bus.Bus, rec Recorder, m *metrics.Collector) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		moduleName: cfg.ModuleName,
		moduleID:   cfg.ModuleID,
		address:    cfg.BusAddress,
		loc:        loc,
		writer:     w,
		bus:        b,
		catalog:    rec,
		metrics:    m,
		now:        time.Now,
	}
}

// Ingest handles one raw capture. The archive writes are started before
// decoding, so a capture that does not decode is still kept; in that case no
// message is published and the decode error is returned. raw must not be
// modified after the call.
func (s *Service) Ingest(ctx context.Context, raw []byte) (feed.Message, error) {
	id := capture.NewIdentity(s.now(), s.loc)
	if s.metrics != nil {
		s.metrics.CapturesReceived.Inc()
		s.metrics.CaptureBytes.Observe(float64(len(raw)))
	}

	s.writer.Write(raw, id)

	res, err := feed.Decode(raw)
	if err != nil {
		log.Printf("ingest: %s: decode error: %v", id.Name, err)
		if s.metrics != nil {
			s.metrics.DecodeErrors.Inc()
		}
		s.record(ctx, id, len(raw), feed.Result{})
		return feed.Message{}, err
	}
	if s.metrics != nil {
		s.metrics.EntitiesDecoded.Add(float64(len(res.Entities)))
		s.metrics.EntitiesDropped.Add(float64(res.Dropped))
	}
	if res.Dropped > 0 {
		log.Printf("ingest: %s: dropped %d malformed entities", id.Name, res.Dropped)
	}

	msg := feed.NewMessage(s.moduleName, s.moduleID, feed.SourceLive, id.Name, id.Path, res)
	if err := s.bus.Publish(s.address, msg); err != nil {
		log.Printf("ingest: publish %s: %v", id.Name, err)
	}

	s.record(ctx, id, len(raw), res)
	return msg, nil
}

func (s *Service) record(ctx context.Context, id capture.Identity, size int, res feed.Result) {
	if s.catalog == nil {
		return
	}
	e := catalog.Entry{
		Filename:      id.Name,
		Filepath:      id.Path,
		Epoch:         id.Epoch,
		FeedTimestamp: res.Timestamp,
		Entities:      len(res.Entities),
		Bytes:         size,
		ModuleID:      s.moduleID,
	}
	if err := s.catalog.Record(ctx, e); err != nil {
		log.Printf("ingest: catalog: %v", err)
		if s.metrics != nil {
			s.metrics.CatalogErrors.Inc()
		}
	}
}
