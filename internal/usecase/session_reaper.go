package usecase

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	applogger "FinChart/pkg/logger"
)

// Sweeper is the part of the session registry the reaper drives.
type Sweeper interface {
	Sweep(ttl time.Duration) int
}

// SessionReaper closes idle chart sessions on a cron schedule.
type SessionReaper struct {
	cron     *cron.Cron
	sessions Sweeper
	ttl      time.Duration
	l        *applogger.Logger
}

// NewSessionReaper registers the sweep on schedule ("@every 1m", "0 */5 * * * *").
func NewSessionReaper(sessions Sweeper, schedule string, ttl time.Duration, l *applogger.Logger) (*SessionReaper, error) {
	if l == nil {
		l = applogger.NewNop()
	}
	r := &SessionReaper{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		ttl:      ttl,
		l:        l,
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.RunOnce() }); err != nil {
		return nil, fmt.Errorf("register session sweep %q: %w", schedule, err)
	}
	return r, nil
}

// RunOnce sweeps immediately and reports how many sessions were closed.
func (r *SessionReaper) RunOnce() int {
	n := r.sessions.Sweep(r.ttl)
	if n > 0 {
		r.l.Info("idle chart sessions reaped", applogger.Int("count", n), applogger.Duration("idle_ttl_ms", r.ttl))
	}
	return n
}

func (r *SessionReaper) Start() {
	r.cron.Start()
	r.l.Info("session reaper started", applogger.Duration("idle_ttl_ms", r.ttl))
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *SessionReaper) Stop() {
	<-r.cron.Stop().Done()
	r.l.Info("session reaper stopped")
}
