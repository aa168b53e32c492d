package modserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// Refresher invalidates and re-warms a Runtime's snapshot on a cron schedule,
// so the request after a refresh does not pay for the load.
type Refresher struct {
	runtime  *Runtime
	schedule string
	logger   Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRefresher validates schedule (standard five-field cron syntax or a
// descriptor such as "@every 5m") and returns a stopped Refresher.
func NewRefresher(rt *Runtime, schedule string) (*Refresher, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return &Refresher{runtime: rt, schedule: schedule, logger: rt.Logger()}, nil
}

// Start schedules refreshes until ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.Refresh(ctx) }); err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("Config refresher started", "schedule", r.schedule)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Refresh invalidates the cache and loads a new snapshot. Load failures are
// logged; the next request retries.
func (r *Refresher) Refresh(ctx context.Context) {
	r.runtime.InvalidateCache()
	if _, err := r.runtime.GetConfig(ctx); err != nil {
		r.logger.Error("Scheduled config refresh failed", "error", err)
		return
	}
	r.logger.Debug("Scheduled config refresh complete")
}

// Stop halts scheduling and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.logger.Info("Config refresher stopped")
}
