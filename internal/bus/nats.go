package bus

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

type NATS struct {
	nc           *nats.Conn
	logAddresses bool
	metrics      PublisherMetrics
}

type PublisherMetrics interface {
	PublishedInc()
	PublishErrInc()
	PublishObserve(d time.Duration)
	SetConnected(connected bool)
}

// NewNATS connects to the NATS server at url. name identifies the client
// connection, normally "<module_name>.<module_id>".
func NewNATS(url, name string, logAddresses bool, m PublisherMetrics) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SetConnected(true)
	}
	return &NATS{nc: nc, logAddresses: logAddresses, metrics: m}, nil
}

func (p *NATS) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// Publish JSON-encodes v and publishes it on address.
func (p *NATS) Publish(address string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logAddresses {
		log.Printf("nats publish address=%s bytes=%d", address, len(b))
	}
	start := time.Now()
	err = p.nc.Publish(address, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.PublishErrInc()
		} else {
			p.metrics.PublishedInc()
		}
	}
	return err
}

// Subscribe delivers every message on address (NATS wildcards allowed) to h.
func (p *NATS) Subscribe(address string, h Handler) (Subscription, error) {
	sub, err := p.nc.Subscribe(address, func(m *nats.Msg) {
		h.Handle(m.Data, m.Subject)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
