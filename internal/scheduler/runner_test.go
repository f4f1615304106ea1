package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/probe"
	"github.com/hamed0406/servicemonitor/internal/repo/memory"
)

// --- fakes ---

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// After never sleeps. Once limit waits were requested it cancels the run
// and returns a channel that never fires.
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	if c.limit > 0 && len(c.waits) >= c.limit {
		c.cancel()
		return nil
	}
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type fakePresenter struct {
	results []domain.CycleResult
	nexts   []time.Time
	err     error
}

func (f *fakePresenter) Render(r domain.CycleResult, next time.Time) error {
	f.results = append(f.results, r)
	f.nexts = append(f.nexts, next)
	return f.err
}

// slowAlerts takes d of fake time per cycle, like a notifier that blocks.
type slowAlerts struct {
	clock *fakeClock
	d     time.Duration
}

func (s slowAlerts) Handle(context.Context, domain.CycleResult) error {
	s.clock.advance(s.d)
	return nil
}

func outcomes(m map[string]probe.Outcome) probe.Prober {
	return probe.ProberFunc(func(_ context.Context, ep domain.Endpoint) probe.Outcome {
		return m[ep.Address]
	})
}

func statuses(r domain.CycleResult) []domain.Status {
	out := make([]domain.Status, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Status
	}
	return out
}

var t0 = time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

// --- tests ---

func TestRunner_SingleActiveNoNotification(t *testing.T) {
	eps := []domain.Endpoint{{Address: "chat.com", Label: "Chat App"}}
	nt := &memNotifier{}
	pr := &fakePresenter{}
	r := NewRunner(zap.NewNop(), eps,
		outcomes(map[string]probe.Outcome{"chat.com": probe.Succeeded("0% packet loss")}),
		pr, newTestAlerter(nt, AlerterConfig{}), nil,
		WithClock(&fakeClock{now: t0}),
	)

	res := r.RunOnce(context.Background())

	if diff := cmp.Diff([]domain.Status{domain.StatusActive}, statuses(res)); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
	if len(res.AlertSet()) != 0 {
		t.Fatalf("want empty alert set")
	}
	if len(nt.sent) != 0 {
		t.Fatalf("want no notification, got %+v", nt.sent)
	}
	if len(pr.results) != 1 || !pr.nexts[0].IsZero() {
		t.Fatalf("want one render without next time, got %d", len(pr.results))
	}
	if res.ID == "" {
		t.Fatalf("want cycle id")
	}
}

func TestRunner_FailureAndErrorOneNotification(t *testing.T) {
	eps := []domain.Endpoint{
		{Address: "a.com", Label: "A"},
		{Address: "b.com", Label: "B"},
	}
	nt := &memNotifier{}
	r := NewRunner(zap.NewNop(), eps,
		outcomes(map[string]probe.Outcome{
			"a.com": probe.Failed("503 Service Unavailable"),
			"b.com": probe.Errored("dns=NXDOMAIN b.com"),
		}),
		&fakePresenter{}, newTestAlerter(nt, AlerterConfig{}), nil,
	)

	res := r.RunOnce(context.Background())

	if diff := cmp.Diff([]domain.Status{domain.StatusInactive, domain.StatusUnknown}, statuses(res)); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
	if len(res.AlertSet()) != 2 {
		t.Fatalf("want both endpoints alerting")
	}
	if len(nt.sent) != 1 {
		t.Fatalf("want one notification, got %d", len(nt.sent))
	}
	if lines := strings.Split(nt.sent[0].text, "\n"); len(lines) != 2 || lines[0] != "a.com (A)" || lines[1] != "b.com (B)" {
		t.Fatalf("unexpected notification body %q", nt.sent[0].text)
	}
	if res.Entries[1].Reason != "dns=NXDOMAIN b.com" {
		t.Fatalf("reason not kept: %+v", res.Entries[1])
	}
}

func TestRunner_ConcurrentKeepsOrder(t *testing.T) {
	var eps []domain.Endpoint
	for _, a := range []string{"e0", "e1", "e2", "e3", "e4", "e5"} {
		eps = append(eps, domain.Endpoint{Address: a, Label: strings.ToUpper(a)})
	}

	var inFlight, maxInFlight atomic.Int32
	var mu sync.Mutex
	seen := map[string]int{}
	prober := probe.ProberFunc(func(_ context.Context, ep domain.Endpoint) probe.Outcome {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		mu.Lock()
		seen[ep.Address]++
		mu.Unlock()

		// earlier endpoints finish last
		idx := int(ep.Address[1] - '0')
		time.Sleep(time.Duration(len(eps)-idx) * 5 * time.Millisecond)
		if idx%2 == 0 {
			return probe.Succeeded("")
		}
		return probe.Failed("")
	})

	r := NewRunner(zap.NewNop(), eps, prober, nil, nil, nil, WithConcurrency(3))
	res := r.RunOnce(context.Background())

	if len(res.Entries) != len(eps) {
		t.Fatalf("want %d entries, got %d", len(eps), len(res.Entries))
	}
	for i, e := range res.Entries {
		if e.Endpoint != eps[i] {
			t.Fatalf("entry %d is %v, want %v", i, e.Endpoint, eps[i])
		}
		want := domain.StatusActive
		if i%2 == 1 {
			want = domain.StatusInactive
		}
		if e.Status != want {
			t.Fatalf("entry %d status %s, want %s", i, e.Status, want)
		}
	}
	for a, n := range seen {
		if n != 1 {
			t.Fatalf("%s probed %d times", a, n)
		}
	}
	if maxInFlight.Load() > 3 {
		t.Fatalf("concurrency limit exceeded: %d", maxInFlight.Load())
	}
}

func TestRunner_PanicBecomesUnknown(t *testing.T) {
	eps := []domain.Endpoint{{Address: "boom", Label: "B"}, {Address: "ok", Label: "O"}}
	prober := probe.ProberFunc(func(_ context.Context, ep domain.Endpoint) probe.Outcome {
		if ep.Address == "boom" {
			panic("unexpected")
		}
		return probe.Succeeded("")
	})

	r := NewRunner(zap.NewNop(), eps, prober, nil, nil, nil)
	res := r.RunOnce(context.Background())

	if diff := cmp.Diff([]domain.Status{domain.StatusUnknown, domain.StatusActive}, statuses(res)); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
	if !strings.Contains(res.Entries[0].Reason, "probe panic") {
		t.Fatalf("unexpected reason %q", res.Entries[0].Reason)
	}
}

func TestRunner_StateDuringCycle(t *testing.T) {
	var r *Runner
	var during State
	prober := probe.ProberFunc(func(context.Context, domain.Endpoint) probe.Outcome {
		during = r.State()
		return probe.Succeeded("")
	})
	r = NewRunner(zap.NewNop(), []domain.Endpoint{{Address: "a", Label: "A"}}, prober, nil, nil, nil)

	if r.State() != StateIdle {
		t.Fatalf("want idle before run")
	}
	r.RunOnce(context.Background())
	if during != StateRunning {
		t.Fatalf("want running during cycle, got %s", during)
	}
	if r.State() != StateIdle {
		t.Fatalf("want idle after cycle, got %s", r.State())
	}
}

func TestRunner_RunSurvivesErrorsForManyCycles(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const cycles = 100
	clock := &fakeClock{now: t0, limit: cycles, cancel: cancel}
	pr := &fakePresenter{err: errors.New("stdout closed")}
	nt := &memNotifier{err: errors.New("no notification daemon")}
	store := memory.New()
	eps := []domain.Endpoint{{Address: "a.com", Label: "A"}, {Address: "b.com", Label: "B"}}
	prober := probe.ProberFunc(func(context.Context, domain.Endpoint) probe.Outcome {
		return probe.Errored("connection refused")
	})

	r := NewRunner(zap.New(core), eps, prober, pr, newTestAlerter(nt, AlerterConfig{}),
		IntervalSchedule{180 * time.Second},
		WithClock(clock), WithResultStore(store),
	)

	err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if len(pr.results) != cycles || len(nt.sent) != cycles {
		t.Fatalf("want %d renders and notifications, got %d and %d", cycles, len(pr.results), len(nt.sent))
	}
	for i, w := range clock.waits {
		if w != 180*time.Second {
			t.Fatalf("wait %d is %s, want 3m0s", i, w)
		}
	}
	for i, next := range pr.nexts {
		if next.IsZero() {
			t.Fatalf("render %d has no next time", i)
		}
	}
	if n := logs.FilterMessage("render_error").Len(); n != cycles {
		t.Fatalf("want %d render_error logs, got %d", cycles, n)
	}
	if n := logs.FilterMessage("notify_error").Len(); n != cycles {
		t.Fatalf("want %d notify_error logs, got %d", cycles, n)
	}
	latest, _ := store.Latest(context.Background())
	if latest == nil || len(latest.Entries) != 2 || latest.Entries[0].Status != domain.StatusUnknown {
		t.Fatalf("want latest result stored, got %+v", latest)
	}
}

func TestRunner_RunStopsWhenCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	prober := probe.ProberFunc(func(context.Context, domain.Endpoint) probe.Outcome {
		calls++
		return probe.Errored("probe aborted")
	})
	r := NewRunner(zap.NewNop(), []domain.Endpoint{{Address: "a", Label: "A"}}, prober, nil, nil, nil,
		WithClock(&fakeClock{now: t0}))

	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("want the in-flight cycle to finish once, got %d", calls)
	}
}

func TestRunner_WaitStartsWhenCycleCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := &fakeClock{now: t0, limit: 2, cancel: cancel}
	eps := []domain.Endpoint{{Address: "a.com", Label: "A"}, {Address: "b.com", Label: "B"}}
	prober := probe.ProberFunc(func(context.Context, domain.Endpoint) probe.Outcome {
		clock.advance(5 * time.Second)
		return probe.Succeeded("")
	})
	ids := []string{"cycle-1", "cycle-2"}
	pr := &fakePresenter{}

	r := NewRunner(zap.NewNop(), eps, prober, pr, slowAlerts{clock, 10 * time.Second},
		IntervalSchedule{time.Minute},
		WithClock(clock),
		WithIDFunc(func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		}),
	)

	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if len(pr.results) != 2 {
		t.Fatalf("want 2 cycles, got %d", len(pr.results))
	}

	first, second := pr.results[0], pr.results[1]
	if first.ID != "cycle-1" || second.ID != "cycle-2" {
		t.Fatalf("unexpected cycle ids %q, %q", first.ID, second.ID)
	}
	if !first.FinishedAt.Equal(t0.Add(10 * time.Second)) {
		t.Fatalf("first cycle finished at %s", first.FinishedAt)
	}
	// probes 10s + alerting 10s + interval 1m
	want := t0.Add(80 * time.Second)
	if !pr.nexts[0].Equal(want) {
		t.Fatalf("footer next %s, want %s", pr.nexts[0], want)
	}
	if !second.StartedAt.Equal(want) {
		t.Fatalf("second cycle started at %s, want %s", second.StartedAt, want)
	}
	if clock.waits[0] != time.Minute {
		t.Fatalf("want 1m wait, got %s", clock.waits[0])
	}
}
