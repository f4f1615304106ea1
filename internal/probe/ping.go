package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/macrat/go-parallel-pinger"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

const DefaultPingTimeout = 2 * time.Second

var (
	ErrFailedToPreparePing = errors.New("failed to setup ping service")
	ErrNoAddress           = errors.New("no address found")
)

type echoer interface {
	Echo(ctx context.Context, target *net.IPAddr, wait time.Duration) (pinger.Result, error)
}

// sharedPinger starts one IPv4 and one IPv6 pinger on first use and keeps
// them running until Close.
type sharedPinger struct {
	privileged bool

	mu   sync.Mutex
	v4   *pinger.Pinger
	v6   *pinger.Pinger
	stop context.CancelFunc
}

func (s *sharedPinger) startLocked() error {
	ctx, stop := context.WithCancel(context.Background())

	v4 := pinger.NewIPv4()
	v4.SetPrivileged(s.privileged)
	if err := v4.Start(ctx); err != nil {
		v4.SetPrivileged(!s.privileged)
		if err := v4.Start(ctx); err != nil {
			stop()
			return fmt.Errorf("%w: %v", ErrFailedToPreparePing, err)
		}
	}

	// Hosts without IPv6 still get IPv4 echo.
	v6 := pinger.NewIPv6()
	v6.SetPrivileged(s.privileged)
	if err := v6.Start(ctx); err != nil {
		v6 = nil
	}

	s.v4, s.v6, s.stop = v4, v6, stop
	return nil
}

func (s *sharedPinger) get(ip net.IP) (*pinger.Pinger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.v4 == nil {
		if err := s.startLocked(); err != nil {
			return nil, err
		}
	}
	if ip.To4() != nil {
		return s.v4, nil
	}
	if s.v6 == nil {
		return nil, fmt.Errorf("%w: IPv6 is not available", ErrFailedToPreparePing)
	}
	return s.v6, nil
}

func (s *sharedPinger) Echo(ctx context.Context, target *net.IPAddr, wait time.Duration) (pinger.Result, error) {
	p, err := s.get(target.IP)
	if err != nil {
		return pinger.Result{}, err
	}
	return p.Ping(ctx, target, 1, wait)
}

func (s *sharedPinger) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		s.stop()
	}
	s.v4, s.v6, s.stop = nil, nil, nil
}

// PingProber sends a single ICMP echo request per probe.
type PingProber struct {
	Timeout time.Duration

	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
	echo   echoer
	shared *sharedPinger
}

func NewPingProber(timeout time.Duration, privileged bool) *PingProber {
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	shared := &sharedPinger{privileged: privileged}
	return &PingProber{
		Timeout: timeout,
		lookup:  net.DefaultResolver.LookupIPAddr,
		echo:    shared,
		shared:  shared,
	}
}

// Close stops the background pingers.
func (p *PingProber) Close() {
	if p.shared != nil {
		p.shared.Close()
	}
}

func (p *PingProber) resolve(ctx context.Context, host string) (*net.IPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.IPAddr{IP: ip}, nil
	}

	addrs, err := p.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAddress, host)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return &a, nil
		}
	}
	return &addrs[0], nil
}

func (p *PingProber) Probe(ctx context.Context, ep domain.Endpoint) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	target, err := p.resolve(ctx, extractHost(ep.Address))
	if err != nil {
		return Errored(describeError(err))
	}

	result, err := p.echo.Echo(ctx, target, p.Timeout)
	if err != nil {
		return Errored(err.Error())
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return Errored("probe aborted")
	}

	return lossOutcome(result)
}

// lossOutcome requires an explicit 0% loss for success.
func lossOutcome(r pinger.Result) Outcome {
	if r.Sent <= 0 {
		return Errored("no packet loss indicator")
	}
	if r.Loss == 0 {
		return Succeeded(fmt.Sprintf("0%% packet loss rtt=%.2fms", float64(r.AvgRTT.Microseconds())/1000))
	}
	return Failed(fmt.Sprintf("%.0f%% packet loss", float64(r.Loss)*100/float64(r.Sent)))
}
