package probe

import (
	"context"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

// Auto sends URLs with an explicit scheme to the HTTP prober and bare
// hosts to the echo prober.
type Auto struct {
	HTTP Prober
	Ping Prober
}

func NewAuto(http, ping Prober) *Auto {
	return &Auto{HTTP: http, Ping: ping}
}

func (a *Auto) Probe(ctx context.Context, ep domain.Endpoint) Outcome {
	if HasScheme(ep.Address) {
		return a.HTTP.Probe(ctx, ep)
	}
	return a.Ping.Probe(ctx, ep)
}
