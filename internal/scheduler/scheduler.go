// Package scheduler drives the sync steps on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/elonfeng/hnmirror/internal/mirror"
	"github.com/elonfeng/hnmirror/internal/telemetry"
	"github.com/elonfeng/hnmirror/pkg/alert"
)

// DefaultInterval is the pause between the end of one cycle and the start of the next.
const DefaultInterval = 20 * time.Second

// Step is one orchestrator run inside a cycle.
type Step interface {
	Name() string
	Run(ctx context.Context) (mirror.Stats, error)
}

// Result is the outcome of one step in a cycle.
type Result struct {
	Step     string
	Stats    mirror.Stats
	Duration time.Duration
	Err      error
}

// Scheduler runs its steps sequentially, once per cycle, forever.
type Scheduler struct {
	steps    []Step
	interval time.Duration
	metrics  *telemetry.SyncMetrics
	alertMgr *alert.Manager
	newID    func() string
	now      func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records step outcomes on m.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithAlerts broadcasts a notification whenever a step fails.
func WithAlerts(m *alert.Manager) Option {
	return func(s *Scheduler) { s.alertMgr = m }
}

// WithCycleIDs overrides the cycle id generator.
func WithCycleIDs(gen func() string) Option {
	return func(s *Scheduler) { s.newID = gen }
}

// New creates a new scheduler. Steps run in the order given.
func New(steps []Step, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		steps:    steps,
		interval: interval,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler running", "interval", s.interval, "steps", len(s.steps))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.RunCycle(ctx)

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle runs every step once. A failing step is logged and the cycle moves
// on to the next one.
func (s *Scheduler) RunCycle(ctx context.Context) []Result {
	cycle := s.newID()
	logger := slog.With("cycle", cycle)
	logger.Debug("cycle started")

	results := make([]Result, 0, len(s.steps))
	for _, step := range s.steps {
		if ctx.Err() != nil {
			logger.Info("cycle interrupted", "step", step.Name())
			break
		}

		res := s.runStep(ctx, step)
		results = append(results, res)

		s.metrics.RecordStep(ctx, res.Step, res.Duration, res.Stats.Items, res.Stats.RankRecords, res.Err)

		if res.Err != nil {
			logger.Error("step failed", "step", res.Step, "duration", res.Duration, "error", res.Err)
			s.notify(ctx, logger, cycle, res)
			continue
		}
		logger.Info("step done",
			"step", res.Step,
			"items", res.Stats.Items,
			"rank_records", res.Stats.RankRecords,
			"duration", res.Duration,
		)
	}
	return results
}

func (s *Scheduler) runStep(ctx context.Context, step Step) (res Result) {
	res.Step = step.Name()
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic in %s step: %v", res.Step, r)
		}
		res.Duration = s.now().Sub(start)
	}()

	res.Stats, res.Err = step.Run(ctx)
	return res
}

func (s *Scheduler) notify(ctx context.Context, logger *slog.Logger, cycle string, res Result) {
	if !s.alertMgr.HasNotifiers() {
		return
	}
	n := alert.StepFailure(cycle, res.Step, res.Err, s.now().UTC())
	if err := s.alertMgr.Broadcast(ctx, n); err != nil {
		logger.Warn("alert delivery failed", "step", res.Step, "error", err)
	}
}
