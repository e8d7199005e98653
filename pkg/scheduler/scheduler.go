// Package scheduler runs named jobs on RFC 5545 recurrence rules under one
// supervisor with an explicit Start/Stop lifecycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teambition/rrule-go"
	"golang.org/x/sync/errgroup"
)

const (
	// Hourly fires at minute zero of every hour.
	Hourly = "FREQ=HOURLY;INTERVAL=1;BYMINUTE=0;BYSECOND=0"
	// EveryTwoHours fires at minute zero of every even hour (UTC).
	EveryTwoHours = "FREQ=HOURLY;INTERVAL=2;BYMINUTE=0;BYSECOND=0"
)

// ParseRule parses raw and anchors it at midnight UTC of anchor's day, so
// interval rules line up with wall-clock boundaries.
func ParseRule(raw string, anchor time.Time) (*rrule.RRule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty recurrence rule")
	}
	rule, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", raw, err)
	}
	y, m, d := anchor.UTC().Date()
	rule.DTStart(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	return rule, nil
}

// Job is one recurring task. Run receives the supervisor context, which is
// cancelled by Stop.
type Job struct {
	Name string
	Rule *rrule.RRule
	Run  func(ctx context.Context)
}

// Supervisor owns the job loops. Each tick launches Run in its own goroutine,
// so a slow run never delays any job's next tick.
type Supervisor struct {
	jobs   []Job
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	group    *errgroup.Group
	inflight sync.WaitGroup
}

// New creates a supervisor for jobs. A nil logger uses slog.Default().
func New(logger *slog.Logger, jobs ...Job) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
	}
}

// Start launches one loop per job. It fails if already running or if a job
// is incomplete.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already running")
	}
	for _, job := range s.jobs {
		if job.Rule == nil || job.Run == nil || job.Name == "" {
			return fmt.Errorf("scheduler job %q is incomplete", job.Name)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		group.Go(func() error {
			s.loop(gctx, job)
			return nil
		})
		s.logger.Info("scheduled job registered", "job", job.Name, "rule", job.Rule.String(), "next", job.Rule.After(s.now(), false))
	}
	s.cancel = cancel
	s.group = group
	return nil
}

// Stop cancels every loop and waits for loops and in-flight runs to return.
// Calling Stop on a stopped supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, group := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	_ = group.Wait()
	s.inflight.Wait()
	s.logger.Info("scheduler stopped")
}

// Next reports the next fire time of job name after now.
func (s *Supervisor) Next(name string) (time.Time, bool) {
	for _, job := range s.jobs {
		if job.Name == name {
			next := job.Rule.After(s.now(), false)
			return next, !next.IsZero()
		}
	}
	return time.Time{}, false
}

func (s *Supervisor) loop(ctx context.Context, job Job) {
	for {
		next := job.Rule.After(s.now(), false)
		if next.IsZero() {
			s.logger.Info("scheduled job has no further occurrences", "job", job.Name)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.fire(ctx, job)
	}
}

func (s *Supervisor) fire(ctx context.Context, job Job) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("scheduled job panicked", "job", job.Name, "panic", v)
			}
		}()
		start := time.Now()
		s.logger.Info("scheduled job started", "job", job.Name)
		job.Run(ctx)
		s.logger.Info("scheduled job finished", "job", job.Name, "duration_ms", time.Since(start).Milliseconds())
	}()
}
