// Package reconcile aligns stored flood and shelter records with the
// government feed using natural-key create-or-merge upserts.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"floodwatch/internal/util"
	"floodwatch/pkg/domain"
	"floodwatch/pkg/govfeed"
	"floodwatch/pkg/store"
)

const (
	SourceGovernment = "government"
	SourceMock       = "mock"

	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"

	maxIssuesKept = 20
)

// ErrSyncInProgress is reported when another run holds the collection lease.
var ErrSyncInProgress = errors.New("sync already in progress")

// Fetcher retrieves the raw elements of a feed endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]json.RawMessage, error)
}

// Config holds feed endpoints and lease settings.
type Config struct {
	FloodURL   string
	ShelterURL string
	LeaseTTL   time.Duration
}

// Engine runs reconciliation passes. It keeps no state between runs.
type Engine struct {
	store store.Store
	feed  Fetcher
	guard Guard
	cfg   Config
	now   func() time.Time
}

// New builds an engine. A nil guard falls back to an in-process MemoryGuard.
func New(st store.Store, feed Fetcher, guard Guard, cfg Config) *Engine {
	if guard == nil {
		guard = NewMemoryGuard()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	cfg.FloodURL = strings.TrimSpace(cfg.FloodURL)
	cfg.ShelterURL = strings.TrimSpace(cfg.ShelterURL)
	return &Engine{
		store: st,
		feed:  feed,
		guard: guard,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RecordIssue identifies one feed element that was skipped or failed.
type RecordIssue struct {
	Index  int    `json:"index"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
}

// Result summarizes one collection pass. Err is the run-level failure, if any;
// per-record problems are only counted.
type Result struct {
	Collection domain.Collection `json:"collection"`
	Source     string            `json:"source"`
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Received   int               `json:"received"`
	Created    int               `json:"created"`
	Updated    int               `json:"updated"`
	Unchanged  int               `json:"unchanged"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Issues     []RecordIssue     `json:"issues,omitempty"`
	Err        error             `json:"-"`
}

// Summary aggregates the results of SyncAll or SeedMockData.
type Summary struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Results []Result `json:"results"`
}

type triggerKey struct{}

// WithTrigger tags ctx with what started the run (recorded in sync history).
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func triggerFrom(ctx context.Context) string {
	if v, ok := ctx.Value(triggerKey{}).(string); ok && v != "" {
		return v
	}
	return TriggerManual
}

// SyncFloods reconciles floods against the live feed.
func (e *Engine) SyncFloods(ctx context.Context) Result {
	return e.run(ctx, domain.CollectionFloods, SourceGovernment, func(ctx context.Context, res *Result) {
		items, err := e.feed.Fetch(ctx, e.cfg.FloodURL)
		if err != nil {
			res.Err = err
			return
		}
		e.applyFloods(ctx, res, parseAll(items, govfeed.ParseFlood))
	})
}

// SyncShelters reconciles shelters against the live feed. An unset shelter
// URL is a successful no-op.
func (e *Engine) SyncShelters(ctx context.Context) Result {
	if e.cfg.ShelterURL == "" {
		util.LoggerFromContext(ctx).Info("shelter feed not configured, skipping sync")
		return Result{
			Collection: domain.CollectionShelters,
			Source:     SourceGovernment,
			Success:    true,
			Message:    "shelter feed not configured",
		}
	}
	return e.run(ctx, domain.CollectionShelters, SourceGovernment, func(ctx context.Context, res *Result) {
		items, err := e.feed.Fetch(ctx, e.cfg.ShelterURL)
		if err != nil {
			res.Err = err
			return
		}
		e.applyShelters(ctx, res, parseAll(items, govfeed.ParseShelter))
	})
}

// SyncAll runs SyncFloods then SyncShelters; the second always runs.
func (e *Engine) SyncAll(ctx context.Context) Summary {
	floods := e.SyncFloods(ctx)
	shelters := e.SyncShelters(ctx)
	return summarize("Government data synced successfully", floods, shelters)
}

// SeedMockData pushes the fixed demo dataset through the same merge path.
func (e *Engine) SeedMockData(ctx context.Context) Summary {
	floods := e.run(ctx, domain.CollectionFloods, SourceMock, func(ctx context.Context, res *Result) {
		e.applyFloods(ctx, res, asValid(mockFloods()))
	})
	shelters := e.run(ctx, domain.CollectionShelters, SourceMock, func(ctx context.Context, res *Result) {
		e.applyShelters(ctx, res, asValid(mockShelters()))
	})
	return summarize("Mock flood and shelter data seeded", floods, shelters)
}

func summarize(okMessage string, results ...Result) Summary {
	s := Summary{Success: true, Results: results}
	var failed []string
	for _, r := range results {
		if !r.Success {
			s.Success = false
			failed = append(failed, fmt.Sprintf("%s: %s", r.Collection, r.Message))
		}
	}
	if s.Success {
		s.Message = okMessage
	} else {
		s.Message = "Sync completed with errors (" + strings.Join(failed, "; ") + ")"
	}
	return s
}

// run wraps one collection pass with the lease, panic containment, logging
// and the sync history row.
func (e *Engine) run(ctx context.Context, col domain.Collection, source string, body func(context.Context, *Result)) (res Result) {
	logger := util.LoggerFromContext(ctx).With("collection", string(col), "source", source)
	res = Result{Collection: col, Source: source}
	started := e.now()

	release, ok, err := e.guard.Acquire(ctx, string(col), e.cfg.LeaseTTL)
	switch {
	case err != nil:
		logger.Warn("sync lease unavailable, running without it", "err", err)
	case !ok:
		res.Err = ErrSyncInProgress
		res.Message = ErrSyncInProgress.Error()
		logger.Info("sync skipped, another run holds the lease")
		return res
	default:
		defer release()
	}

	defer func() {
		if v := recover(); v != nil {
			logger.Error("sync panicked", "panic", v)
			res.Err = fmt.Errorf("sync panicked: %v", v)
		}
		res.Success = res.Err == nil && res.Failed == 0
		res.Message = describeResult(res)
		level := slog.LevelInfo
		if !res.Success {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "sync finished",
			"success", res.Success,
			"received", res.Received,
			"created", res.Created,
			"updated", res.Updated,
			"unchanged", res.Unchanged,
			"skipped", res.Skipped,
			"failed", res.Failed,
			"err", res.Err,
		)
		e.recordRun(ctx, triggerFrom(ctx), started, res)
	}()

	logger.Info("sync started")
	body(ctx, &res)
	return res
}

func describeResult(r Result) string {
	switch {
	case errors.Is(r.Err, govfeed.ErrFeedUnavailable):
		return "feed unavailable"
	case errors.Is(r.Err, govfeed.ErrFeedFormatInvalid):
		return "feed returned an invalid format"
	case r.Err != nil:
		return "sync aborted"
	}
	return fmt.Sprintf("%s synced: %d received, %d created, %d updated, %d unchanged, %d skipped, %d failed",
		r.Collection, r.Received, r.Created, r.Updated, r.Unchanged, r.Skipped, r.Failed)
}

func (e *Engine) recordRun(ctx context.Context, trigger string, started time.Time, res Result) {
	run := domain.SyncRun{
		Collection: res.Collection,
		Source:     res.Source,
		Trigger:    trigger,
		Success:    res.Success,
		Message:    res.Message,
		Received:   res.Received,
		Created:    res.Created,
		Updated:    res.Updated,
		Skipped:    res.Skipped,
		Failed:     res.Failed,
		StartedAt:  started,
		FinishedAt: e.now(),
	}
	details := map[string]any{}
	if res.Unchanged > 0 {
		details["unchanged"] = res.Unchanged
	}
	if len(res.Issues) > 0 {
		details["issues"] = res.Issues
	}
	if res.Err != nil {
		details["error"] = res.Err.Error()
	}
	if len(details) > 0 {
		run.Details = details
	}
	// History must not fail the run; the write gets its own short deadline
	// so a cancelled request context still records the outcome.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.AppendSyncRun(wctx, &run); err != nil {
		util.LoggerFromContext(ctx).Warn("record sync run failed", "collection", string(res.Collection), "err", err)
	}
}

func (r *Result) skip(index int, key, reason string) {
	r.Skipped++
	r.note(index, key, reason)
}

func (r *Result) fail(index int, key string, err error) {
	r.Failed++
	r.note(index, key, err.Error())
}

func (r *Result) note(index int, key, reason string) {
	if len(r.Issues) < maxIssuesKept {
		r.Issues = append(r.Issues, RecordIssue{Index: index, Key: key, Reason: reason})
	}
}

func parseAll[T any](items []json.RawMessage, parse func(json.RawMessage) govfeed.Record[T]) []govfeed.Record[T] {
	out := make([]govfeed.Record[T], 0, len(items))
	for _, raw := range items {
		out = append(out, parse(raw))
	}
	return out
}

func asValid[T any](items []T) []govfeed.Record[T] {
	out := make([]govfeed.Record[T], 0, len(items))
	for i := range items {
		out = append(out, govfeed.Record[T]{Valid: &items[i]})
	}
	return out
}

func (e *Engine) applyFloods(ctx context.Context, res *Result, records []govfeed.Record[govfeed.FloodCandidate]) {
	logger := util.LoggerFromContext(ctx)
	res.Received = len(records)
	for i, rec := range records {
		if rec.Rejected != nil {
			logger.Warn("skipping invalid flood record", "index", i, "reason", rec.Rejected.Reason)
			res.skip(i, "", rec.Rejected.Reason)
			continue
		}
		c := *rec.Valid
		if len(rec.Ignored) > 0 {
			logger.Debug("ignoring unusable optional fields", "index", i, "title", c.Title, "fields", rec.Ignored)
		}
		outcome, err := e.upsertFlood(ctx, c)
		if err != nil {
			logger.Error("flood record failed", "index", i, "title", c.Title, "err", err)
			res.fail(i, c.Title, err)
			continue
		}
		res.count(outcome)
	}
}

func (e *Engine) applyShelters(ctx context.Context, res *Result, records []govfeed.Record[govfeed.ShelterCandidate]) {
	logger := util.LoggerFromContext(ctx)
	res.Received = len(records)
	for i, rec := range records {
		if rec.Rejected != nil {
			logger.Warn("skipping invalid shelter record", "index", i, "reason", rec.Rejected.Reason)
			res.skip(i, "", rec.Rejected.Reason)
			continue
		}
		c := *rec.Valid
		if len(rec.Ignored) > 0 {
			logger.Debug("ignoring unusable optional fields", "index", i, "name", c.Name, "fields", rec.Ignored)
		}
		outcome, err := e.upsertShelter(ctx, c)
		if err != nil {
			logger.Error("shelter record failed", "index", i, "name", c.Name, "err", err)
			res.fail(i, c.Name, err)
			continue
		}
		res.count(outcome)
	}
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

func (r *Result) count(o outcome) {
	switch o {
	case outcomeCreated:
		r.Created++
	case outcomeUpdated:
		r.Updated++
	default:
		r.Unchanged++
	}
}

func (e *Engine) upsertFlood(ctx context.Context, c govfeed.FloodCandidate) (outcome, error) {
	existing, found, err := e.store.FindFloodByKey(ctx, c.Title, c.Location)
	if err != nil {
		return 0, fmt.Errorf("lookup flood: %w", err)
	}
	if !found {
		f := NewFlood(c)
		if err := e.store.SaveFlood(ctx, &f); err != nil {
			return 0, fmt.Errorf("create flood: %w", err)
		}
		return outcomeCreated, nil
	}
	merged, changed := MergeFlood(existing, c)
	if !changed {
		return outcomeUnchanged, nil
	}
	if err := e.store.SaveFlood(ctx, &merged); err != nil {
		return 0, fmt.Errorf("update flood: %w", err)
	}
	return outcomeUpdated, nil
}

func (e *Engine) upsertShelter(ctx context.Context, c govfeed.ShelterCandidate) (outcome, error) {
	existing, found, err := e.store.FindShelterByKey(ctx, c.Name, c.Location)
	if err != nil {
		return 0, fmt.Errorf("lookup shelter: %w", err)
	}
	if !found {
		s := NewShelter(c)
		if err := e.store.SaveShelter(ctx, &s); err != nil {
			return 0, fmt.Errorf("create shelter: %w", err)
		}
		return outcomeCreated, nil
	}
	merged, changed := MergeShelter(existing, c)
	if !changed {
		return outcomeUnchanged, nil
	}
	if err := e.store.SaveShelter(ctx, &merged); err != nil {
		return 0, fmt.Errorf("update shelter: %w", err)
	}
	return outcomeUpdated, nil
}
