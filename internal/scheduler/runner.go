package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/probe"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Presenter shows a finished cycle. next is zero when no further cycle is
// scheduled.
type Presenter interface {
	Render(r domain.CycleResult, next time.Time) error
}

// Handler receives every finished cycle for alerting.
type Handler interface {
	Handle(ctx context.Context, r domain.CycleResult) error
}

type Runner struct {
	Logger      *zap.Logger
	Endpoints   []domain.Endpoint
	Prober      probe.Prober
	Presenter   Presenter
	Alerts      Handler
	Schedule    Schedule
	Results     repo.ResultStore
	Concurrency int

	clock Clock
	newID func() string
	state atomic.Int32
}

type Option func(*Runner)

// WithConcurrency probes up to n endpoints at once. Results keep the
// configured order.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.Concurrency = n
		}
	}
}

func WithClock(c Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithResultStore publishes each finished cycle to s.
func WithResultStore(s repo.ResultStore) Option {
	return func(r *Runner) {
		r.Results = s
	}
}

func WithIDFunc(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func NewRunner(
	logger *zap.Logger,
	endpoints []domain.Endpoint,
	prober probe.Prober,
	presenter Presenter,
	alerts Handler,
	schedule Schedule,
	opts ...Option,
) *Runner {
	if schedule == nil {
		schedule = IntervalSchedule{DefaultInterval}
	}
	r := &Runner{
		Logger:      logger,
		Endpoints:   append([]domain.Endpoint(nil), endpoints...),
		Prober:      prober,
		Presenter:   presenter,
		Alerts:      alerts,
		Schedule:    schedule,
		Concurrency: 1,
		clock:       realClock{},
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run repeats cycles until ctx is cancelled. The wait before the next cycle
// starts when the previous one completes.
func (r *Runner) Run(ctx context.Context) error {
	r.Logger.Info("runner_started",
		zap.Int("endpoints", len(r.Endpoints)),
		zap.Stringer("schedule", r.Schedule),
		zap.Int("concurrency", r.Concurrency),
	)

	for {
		res, next := r.cycle(ctx, true)
		if ctx.Err() != nil {
			r.Logger.Info("runner_stopped")
			return ctx.Err()
		}

		wait := next.Sub(r.clock.Now())
		if wait < 0 {
			wait = 0
		}
		r.Logger.Debug("runner_waiting", zap.String("cycle_id", res.ID), zap.Time("next", next), zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			r.Logger.Info("runner_stopped")
			return ctx.Err()
		case <-r.clock.After(wait):
		}
	}
}

// RunOnce runs a single cycle without scheduling another one.
func (r *Runner) RunOnce(ctx context.Context) domain.CycleResult {
	res, _ := r.cycle(ctx, false)
	return res
}

// cycle probes, stores, alerts and renders one result. next is the time
// of the following cycle, measured from when alerting finished, and is zero
// when scheduled is false.
func (r *Runner) cycle(ctx context.Context, scheduled bool) (res domain.CycleResult, next time.Time) {
	r.state.Store(int32(StateRunning))
	defer r.state.Store(int32(StateIdle))

	res = domain.CycleResult{
		ID:        r.newID(),
		StartedAt: r.clock.Now(),
		Entries:   r.probeAll(ctx),
	}
	res.FinishedAt = r.clock.Now()
	r.logCycle(res)

	if r.Results != nil {
		if err := r.Results.Save(ctx, res); err != nil {
			r.Logger.Warn("result_store_error", zap.String("cycle_id", res.ID), zap.Error(err))
		}
	}
	if r.Alerts != nil {
		if err := r.Alerts.Handle(ctx, res); err != nil {
			r.Logger.Error("notify_error", zap.String("cycle_id", res.ID), zap.Error(err))
		}
	}

	if scheduled {
		next = r.Schedule.Next(r.clock.Now())
	}
	if r.Presenter != nil {
		if err := r.Presenter.Render(res, next); err != nil {
			r.Logger.Warn("render_error", zap.String("cycle_id", res.ID), zap.Error(err))
		}
	}
	return res, next
}

func (r *Runner) probeAll(ctx context.Context) []domain.Entry {
	entries := make([]domain.Entry, len(r.Endpoints))

	if r.Concurrency <= 1 {
		for i, ep := range r.Endpoints {
			entries[i] = r.probeOne(ctx, ep)
		}
		return entries
	}

	// Each goroutine owns one index, so the order never depends on
	// completion order.
	var g errgroup.Group
	g.SetLimit(r.Concurrency)
	for i, ep := range r.Endpoints {
		i, ep := i, ep
		g.Go(func() error {
			entries[i] = r.probeOne(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()
	return entries
}

func (r *Runner) probeOne(ctx context.Context, ep domain.Endpoint) (entry domain.Entry) {
	defer func() {
		if v := recover(); v != nil {
			entry = r.entry(ep, probe.Errored(fmt.Sprintf("probe panic: %v", v)))
			r.Logger.Error("probe_panic", zap.String("address", ep.Address), zap.Any("panic", v))
		}
	}()

	return r.entry(ep, r.Prober.Probe(ctx, ep))
}

func (r *Runner) entry(ep domain.Endpoint, out probe.Outcome) domain.Entry {
	e := domain.Entry{
		Endpoint:  ep,
		Status:    probe.Classify(out),
		Reason:    out.Reason,
		CheckedAt: r.clock.Now(),
	}

	fields := []zap.Field{
		zap.String("address", ep.Address),
		zap.String("label", ep.Label),
		zap.Stringer("outcome", out.Kind),
		zap.Stringer("status", e.Status),
		zap.String("reason", out.Reason),
	}
	if out.Kind == probe.KindError {
		r.Logger.Warn("probe_error", fields...)
	} else {
		r.Logger.Debug("probe_checked", fields...)
	}
	return e
}

func (r *Runner) logCycle(res domain.CycleResult) {
	var active, inactive, unknown int
	for _, e := range res.Entries {
		switch e.Status {
		case domain.StatusActive:
			active++
		case domain.StatusInactive:
			inactive++
		default:
			unknown++
		}
	}
	r.Logger.Info("cycle_completed",
		zap.String("cycle_id", res.ID),
		zap.Int("active", active),
		zap.Int("inactive", inactive),
		zap.Int("unknown", unknown),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
	)
}
