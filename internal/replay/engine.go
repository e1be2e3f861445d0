package replay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"rtmonitor/internal/bus"
	"rtmonitor/internal/feed"
	"rtmonitor/internal/metrics"
)

// Halt reasons recorded in metrics.
const (
	HaltFinished  = "finished"
	HaltError     = "error"
	HaltCancelled = "cancelled"
)

// Stats summarises a run. Skipped counts captures that failed to decode or
// to publish.
type Stats struct {
	Published int64
	Skipped   int64
}

// Engine republishes the captures yielded by a Cursor, waiting Rate after
// each publish so consumers see the archive at a controlled pace.
type Engine struct {
	cursor     *Cursor
	bus        bus.Bus
	address    string
	moduleName string
	moduleID   string
	rate       time.Duration
	metrics    *metrics.Collector

	published atomic.Int64
	skipped   atomic.Int64
}

func NewEngine(c *Cursor, b bus.Bus, address, moduleName, moduleID string, rate time.Duration, m *metrics.Collector) *Engine {
	return &Engine{
		cursor:     c,
		bus:        b,
		address:    address,
		moduleName: moduleName,
		moduleID:   moduleID,
		rate:       rate,
		metrics:    m,
	}
}

// Run replays until the window is exhausted (nil), a capture cannot be
// listed or read (error), or ctx is cancelled (ctx.Err()). Captures that
// fail to decode are logged and skipped without waiting. A failed publish is
// logged and skipped; the rate delay still applies.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			e.halt(HaltCancelled)
			return err
		}

		c, err := e.cursor.Next()
		if errors.Is(err, ErrFinished) {
			e.halt(HaltFinished)
			log.Printf("replay finished: published=%d skipped=%d", e.published.Load(), e.skipped.Load())
			return nil
		}
		if err != nil {
			e.halt(HaltError)
			return err
		}

		raw, err := os.ReadFile(c.Path)
		if err != nil {
			e.halt(HaltError)
			return fmt.Errorf("read capture: %w", err)
		}

		res, err := feed.Decode(raw)
		if err != nil {
			log.Printf("replay: skipping %s: %v", c.Path, err)
			e.skipped.Add(1)
			if e.metrics != nil {
				e.metrics.ReplaySkipped.Inc()
			}
			continue
		}
		if res.Dropped > 0 {
			log.Printf("replay: %s: dropped %d malformed entities", c.Name, res.Dropped)
		}

		msg := feed.NewMessage(e.moduleName, e.moduleID, feed.SourceReplay, c.Name, c.Filepath, res)
		if err := e.bus.Publish(e.address, msg); err != nil {
			log.Printf("replay: publish %s: %v", c.Name, err)
			e.skipped.Add(1)
			if e.metrics != nil {
				e.metrics.ReplaySkipped.Inc()
			}
		} else {
			e.published.Add(1)
			if e.metrics != nil {
				e.metrics.ReplayPublished.Inc()
			}
		}

		if err := sleep(ctx, e.rate); err != nil {
			e.halt(HaltCancelled)
			return err
		}
	}
}

// Stats reports progress so far. Safe to call while Run is in progress.
func (e *Engine) Stats() Stats {
	return Stats{Published: e.published.Load(), Skipped: e.skipped.Load()}
}

func (e *Engine) halt(reason string) {
	if e.metrics != nil {
		e.metrics.ReplayHalts.WithLabelValues(reason).Inc()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
