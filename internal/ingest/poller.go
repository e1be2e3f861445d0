package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Poller fetches an upstream feed on an interval and ingests each body.
type Poller struct {
	svc      *Service
	url      string
	interval time.Duration
	maxBytes int64
	client   *http.Client
}

func NewPoller(svc *Service, url string, interval time.Duration, maxBytes int64) *Poller {
	return &Poller{
		svc:      svc,
		url:      url,
		interval: interval,
		maxBytes: maxBytes,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Run polls immediately and then once per interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.pollOnce(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	raw, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("poller: %v", err)
		}
		return
	}
	// decode failures are already logged and counted by Ingest
	_, _ = p.svc.Ingest(ctx, raw)
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > p.maxBytes {
		return nil, fmt.Errorf("feed larger than %d bytes", p.maxBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty feed")
	}
	return body, nil
}
