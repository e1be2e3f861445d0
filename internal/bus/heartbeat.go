package bus

import (
	"context"
	"log"
	"time"
)

// StatusUp is the only status a module reports about itself.
const StatusUp = "UP"

// Status is the heartbeat payload. Consumers treat a module as stale when no
// heartbeat arrives within AmberSeconds, and as down after RedSeconds.
type Status struct {
	ModuleName   string `json:"module_name"`
	ModuleID     string `json:"module_id"`
	Status       string `json:"status"`
	AmberSeconds int    `json:"status_amber_seconds"`
	RedSeconds   int    `json:"status_red_seconds"`
}

// Heartbeat periodically publishes a module's UP status.
type Heartbeat struct {
	bus      Bus
	address  string
	interval time.Duration
	status   Status
}

func NewHeartbeat(b Bus, address string, interval time.Duration, moduleName, moduleID string, amber, red int) *Heartbeat {
	return &Heartbeat{
		bus:      b,
		address:  address,
		interval: interval,
		status: Status{
			ModuleName:   moduleName,
			ModuleID:     moduleID,
			Status:       StatusUp,
			AmberSeconds: amber,
			RedSeconds:   red,
		},
	}
}

// Run publishes immediately and then once per interval until ctx is done.
func (h *Heartbeat) Run(ctx context.Context) {
	h.beat()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeat) beat() {
	if err := h.bus.Publish(h.address, h.status); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}
