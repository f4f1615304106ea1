package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

const (
	AlertTitle    = "Service Monitor Alert"
	RecoveryTitle = "Service Monitor Recovery"
)

type AlertMode string

const (
	// AlertEveryCycle notifies on every cycle that has a non-Active endpoint.
	AlertEveryCycle AlertMode = "every-cycle"
	// AlertOnChange notifies only for endpoints whose status changed.
	AlertOnChange AlertMode = "on-change"
)

func ParseAlertMode(s string) (AlertMode, error) {
	switch m := AlertMode(s); m {
	case AlertEveryCycle, AlertOnChange:
		return m, nil
	}
	return "", fmt.Errorf("unknown alert mode %q (want %q or %q)", s, AlertEveryCycle, AlertOnChange)
}

type AlerterConfig struct {
	Mode            AlertMode
	AlertOnRecovery bool // on-change mode only
}

type Alerter struct {
	logger   *zap.Logger
	state    repo.AlertStore
	notifier interface {
		Send(context.Context, string, string) error
	}
	cfg AlerterConfig
	now func() time.Time
}

func NewAlerter(
	logger *zap.Logger,
	state repo.AlertStore,
	notifier interface {
		Send(context.Context, string, string) error
	},
	cfg AlerterConfig,
) *Alerter {
	if cfg.Mode == "" {
		cfg.Mode = AlertEveryCycle
	}
	return &Alerter{
		logger:   logger,
		state:    state,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// FormatAlert renders one "<address> (<label>)" line per entry.
func FormatAlert(entries []domain.Entry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%s (%s)", e.Endpoint.Address, e.Endpoint.Label)
	}
	return strings.Join(lines, "\n")
}

// Dispatch sends a single notification listing the entries, or nothing when
// the list is empty.
func (a *Alerter) Dispatch(ctx context.Context, alerts []domain.Entry) error {
	if len(alerts) == 0 {
		return nil
	}
	return a.send(ctx, AlertTitle, alerts)
}

func (a *Alerter) send(ctx context.Context, title string, entries []domain.Entry) error {
	if err := a.notifier.Send(ctx, title, FormatAlert(entries)); err != nil {
		return fmt.Errorf("send %q: %w", title, err)
	}
	a.logger.Info("alert_sent",
		zap.String("title", title),
		zap.Int("endpoints", len(entries)),
	)
	return nil
}

// Handle decides what the cycle result should notify about, according to
// the configured mode.
func (a *Alerter) Handle(ctx context.Context, r domain.CycleResult) error {
	if a.cfg.Mode != AlertOnChange {
		return a.Dispatch(ctx, r.AlertSet())
	}

	down, recovered, quiet, err := a.changes(ctx, r)
	if err != nil {
		return err
	}
	if err := a.commit(ctx, quiet, false); err != nil {
		return err
	}

	var errs error

	// A transition is recorded only once its notification went out, so a
	// failed send is retried on the next cycle.
	if len(down) > 0 {
		if err := a.send(ctx, AlertTitle, entriesOf(down)); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			errs = multierr.Append(errs, a.commit(ctx, down, true))
		}
	}
	if len(recovered) > 0 {
		if !a.cfg.AlertOnRecovery {
			errs = multierr.Append(errs, a.commit(ctx, recovered, false))
		} else if err := a.send(ctx, RecoveryTitle, entriesOf(recovered)); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			errs = multierr.Append(errs, a.commit(ctx, recovered, true))
		}
	}
	return errs
}

// transition is a pending state record for one entry.
type transition struct {
	entry domain.Entry
	rec   repo.AlertRecord
}

func entriesOf(ts []transition) []domain.Entry {
	out := make([]domain.Entry, len(ts))
	for i, t := range ts {
		out[i] = t.entry
	}
	return out
}

// changes compares the cycle with the stored records without writing. It
// returns the entries that became non-Active (or switched between Inactive
// and Unknown), the entries that returned to Active, and first sightings
// that need a record but no notification.
func (a *Alerter) changes(ctx context.Context, r domain.CycleResult) (down, recovered, quiet []transition, err error) {
	now := a.now()

	for _, e := range r.Entries {
		rec, err := a.state.Get(ctx, e.Endpoint.Key())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("alert state %s: %w", e.Endpoint.Address, err)
		}

		// A new endpoint counts as previously Active, so a first cycle
		// that finds it down alerts.
		prev := domain.StatusActive
		if rec != nil {
			prev = rec.Current
		}
		if prev == e.Status && rec != nil {
			continue
		}

		t := transition{
			entry: e,
			rec:   repo.AlertRecord{Endpoint: e.Endpoint, Previous: prev, Current: e.Status, ChangedAt: now},
		}
		if rec != nil {
			t.rec.LastSentAt = rec.LastSentAt
		}

		switch {
		case prev == e.Status:
			quiet = append(quiet, t)
		case e.Alerting():
			down = append(down, t)
		default:
			recovered = append(recovered, t)
		}
	}
	return down, recovered, quiet, nil
}

func (a *Alerter) commit(ctx context.Context, ts []transition, sent bool) error {
	now := a.now()
	for _, t := range ts {
		rec := t.rec
		if sent {
			rec.LastSentAt = &now
		}
		if err := a.state.Set(ctx, rec); err != nil {
			return fmt.Errorf("alert state %s: %w", rec.Endpoint.Address, err)
		}
	}
	return nil
}
