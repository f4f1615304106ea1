package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

const DefaultHTTPTimeout = 5 * time.Second

var HTTPUserAgent = "servicemonitor health check"

type HTTPProber struct {
	Client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPProber{
		Client: &http.Client{
			Timeout: timeout,
			// one request per probe: a redirect is reported, not followed
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
	}
}

func (h *HTTPProber) Probe(ctx context.Context, ep domain.Endpoint) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, EnsureProtocol(ep.Address), nil)
	if err != nil {
		return Errored(err.Error())
	}
	req.Header.Set("User-Agent", HTTPUserAgent)

	resp, err := h.Client.Do(req)
	if err != nil {
		return Errored(describeError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Succeeded(resp.Status)
	}
	return Failed(resp.Status)
}
