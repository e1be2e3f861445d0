package metrics

import (
	"time"

	"rtmonitor/internal/bus"
)

// WrapPublisher adapts c to the bus.PublisherMetrics interface. A nil
// collector yields a nil interface.
func WrapPublisher(c *Collector) bus.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *Collector }

func (p *pubMetrics) PublishedInc()                  { p.c.BusPublished.Inc() }
func (p *pubMetrics) PublishErrInc()                 { p.c.BusPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) SetConnected(b bool) {
	if b {
		p.c.BusConnected.Set(1)
	} else {
		p.c.BusConnected.Set(0)
	}
}
