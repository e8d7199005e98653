package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseRuleAlignsToWallClock(t *testing.T) {
	anchor := time.Date(2026, 5, 10, 11, 30, 0, 0, time.UTC)

	hourly, err := ParseRule(Hourly, anchor)
	if err != nil {
		t.Fatalf("parse hourly: %v", err)
	}
	if got, want := hourly.After(anchor, false), time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("hourly next = %v, want %v", got, want)
	}

	twoHourly, err := ParseRule(EveryTwoHours, anchor)
	if err != nil {
		t.Fatalf("parse two-hourly: %v", err)
	}
	at := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	if got := twoHourly.After(anchor, false); !got.Equal(at) {
		t.Fatalf("two-hourly next = %v, want %v", got, at)
	}
	if got, want := twoHourly.After(at, false), at.Add(2*time.Hour); !got.Equal(want) {
		t.Fatalf("two-hourly after tick = %v, want %v", got, want)
	}
}

func TestParseRuleRejectsGarbage(t *testing.T) {
	if _, err := ParseRule("INVALID_RRULE_SYNTAX", time.Now()); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseRule("  ", time.Now()); err == nil {
		t.Fatalf("expected error for empty rule")
	}
}

func TestSupervisorRunsJobsIndependently(t *testing.T) {
	rule, err := ParseRule("FREQ=SECONDLY;INTERVAL=1", time.Now())
	if err != nil {
		t.Fatalf("parse rule: %v", err)
	}
	var fast atomic.Int32
	block := make(chan struct{})
	s := New(nil,
		Job{Name: "stuck", Rule: rule, Run: func(ctx context.Context) {
			select {
			case <-block:
			case <-ctx.Done():
			}
		}},
		Job{Name: "fast", Rule: rule, Run: func(context.Context) { fast.Add(1) }},
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("second start should fail")
	}

	deadline := time.Now().Add(5 * time.Second)
	for fast.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if fast.Load() < 2 {
		t.Fatalf("fast job blocked by stuck job: ran %d times", fast.Load())
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("stop did not return")
	}
	close(block)

	n := fast.Load()
	time.Sleep(1200 * time.Millisecond)
	if fast.Load() != n {
		t.Fatalf("job ran after stop")
	}
	s.Stop()
}

func TestSupervisorRecoversPanics(t *testing.T) {
	rule, _ := ParseRule("FREQ=SECONDLY;INTERVAL=1", time.Now())
	var calls atomic.Int32
	s := New(nil, Job{Name: "boom", Rule: rule, Run: func(context.Context) {
		calls.Add(1)
		panic("boom")
	}})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatalf("panicking job should keep being scheduled, ran %d", calls.Load())
	}
}

func TestSupervisorRejectsIncompleteJob(t *testing.T) {
	s := New(nil, Job{Name: "no-rule", Run: func(context.Context) {}})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error for job without rule")
	}
}

func TestSupervisorNext(t *testing.T) {
	rule, _ := ParseRule(Hourly, time.Now())
	s := New(nil, Job{Name: "floods", Rule: rule, Run: func(context.Context) {}})
	fixed := time.Date(2026, 5, 10, 9, 59, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	rule.DTStart(time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))

	next, ok := s.Next("floods")
	if !ok || !next.Equal(time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("next = %v ok=%v", next, ok)
	}
	if _, ok := s.Next("unknown"); ok {
		t.Fatalf("unknown job should report false")
	}
}
