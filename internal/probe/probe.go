package probe

import (
	"context"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

// Kind is the raw result category of a single probe.
type Kind int

const (
	KindError Kind = iota
	KindSuccess
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	default:
		return "error"
	}
}

// Outcome is the unified result of a single probe.
//
// Failure means the endpoint answered but reported a problem (non-2xx
// response, lost packets). Error means the probe itself could not be
// completed or interpreted.
type Outcome struct {
	Kind   Kind
	Reason string
}

func Succeeded(reason string) Outcome { return Outcome{Kind: KindSuccess, Reason: reason} }
func Failed(reason string) Outcome    { return Outcome{Kind: KindFailure, Reason: reason} }
func Errored(reason string) Outcome   { return Outcome{Kind: KindError, Reason: reason} }

// Prober performs exactly one reachability check for an endpoint.
// Implementations must report every failure mode as an Outcome.
type Prober interface {
	Probe(ctx context.Context, ep domain.Endpoint) Outcome
}

// ProberFunc adapts a plain function to Prober.
type ProberFunc func(ctx context.Context, ep domain.Endpoint) Outcome

func (f ProberFunc) Probe(ctx context.Context, ep domain.Endpoint) Outcome {
	return f(ctx, ep)
}

// Classify maps a probe outcome to an endpoint status.
func Classify(o Outcome) domain.Status {
	switch o.Kind {
	case KindSuccess:
		return domain.StatusActive
	case KindFailure:
		return domain.StatusInactive
	default:
		return domain.StatusUnknown
	}
}
