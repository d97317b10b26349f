package main

import (
	"context"
	"log/slog"
	"time"
)

type cycler interface {
	RunCycle(ctx context.Context) []Progress
}

// Scheduler runs dispatch cycles every interval and whenever a producer
// publishes a new top marker.
type Scheduler struct {
	d        cycler
	interval time.Duration
	wake     <-chan struct{}
	log      *slog.Logger
}

func NewScheduler(d cycler, interval time.Duration, wake <-chan struct{}, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{d: d, interval: interval, wake: wake, log: log}
}

// Run blocks until ctx is done. A cycle in progress is allowed to observe
// the cancellation and stop between slots.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.Info("dispatch scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("dispatch scheduler stopped")
			return nil
		case <-t.C:
		case <-s.wake:
		}
		s.d.RunCycle(ctx)
	}
}
