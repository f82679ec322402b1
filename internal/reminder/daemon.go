// Package reminder runs the background sweep that mails users their
// pending tasks once a day.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/services"
)

// Daemon ticks once an hour and hands each tick to the reminder service.
// The tick runs in UTC; the service decides per timezone whether local
// send time has been reached, so an hourly cadence is enough.
type Daemon struct {
	mu   sync.Mutex
	svc  *services.ReminderService
	log  zerolog.Logger
	spec string
	c    *cron.Cron
}

func NewDaemon(svc *services.ReminderService, log zerolog.Logger) *Daemon {
	return &Daemon{svc: svc, log: log, spec: "0 * * * *"}
}

// Start registers the sweep and starts the scheduler. Calling Start on a
// running daemon is a no-op.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(d.spec, func() { d.sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule reminder sweep: %w", err)
	}
	c.Start()
	d.c = c
	d.log.Info().Str("spec", d.spec).Msg("reminder daemon started")
	return nil
}

// Stop waits for an in-flight sweep to finish before returning.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c == nil {
		return
	}
	<-d.c.Stop().Done()
	d.c = nil
	d.log.Info().Msg("reminder daemon stopped")
}

func (d *Daemon) sweep(ctx context.Context) {
	if _, err := d.svc.SweepAll(ctx, services.SweepOptions{}); err != nil {
		d.log.Error().Err(err).Msg("reminder sweep failed")
	}
}
