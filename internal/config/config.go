package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

var (
	ErrInvalidPair     = errors.New("invalid server-app pair format")
	ErrInvalidInterval = errors.New("interval must be between 1 second and about 292 years")
	ErrInvalidOption   = errors.New("invalid option")
)

// maxIntervalSeconds is the largest --interval that fits a time.Duration.
const maxIntervalSeconds = math.MaxInt64 / uint64(time.Second)

const (
	ProbeAuto = "auto"
	ProbeHTTP = "http"
	ProbePing = "ping"
)

type Config struct {
	Servers  []domain.Endpoint
	Interval time.Duration
	Schedule string // cron expression; overrides Interval when set

	ProbeMode   string
	HTTPTimeout time.Duration
	PingTimeout time.Duration
	Privileged  bool
	Concurrency int

	AlertMode       string
	AlertOnRecovery bool
	Desktop         bool
	SlackWebhook    string

	ListenAddr string
	APIKeys    []string

	LogDir   string
	LogLevel zapcore.Level

	Once     bool
	ShowHelp bool
}

// DefaultServers is used when no --servers are given.
func DefaultServers() []domain.Endpoint {
	return []domain.Endpoint{
		{Address: "chat.com", Label: "Chat Application"},
		{Address: "192.4.5.11", Label: "Example App"},
		{Address: "dns.google", Label: "Google DNS Service"},
	}
}

// ParseServerPair parses "address,label".
func ParseServerPair(s string) (domain.Endpoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 || parts[0] == "" {
		return domain.Endpoint{}, fmt.Errorf("%w: '%s'. Expected 'server,app'", ErrInvalidPair, s)
	}
	return domain.Endpoint{Address: parts[0], Label: parts[1]}, nil
}

// parseServerList splits space-delimited pairs. A word without a comma
// continues the label of the pair before it, so "a.com,Chat App" stays one
// endpoint.
func parseServerList(values []string) ([]domain.Endpoint, error) {
	var pairs []string
	for _, v := range values {
		for _, word := range strings.Fields(v) {
			if !strings.Contains(word, ",") && len(pairs) > 0 {
				pairs[len(pairs)-1] += " " + word
				continue
			}
			pairs = append(pairs, word)
		}
	}

	out := make([]domain.Endpoint, 0, len(pairs))
	for _, p := range pairs {
		ep, err := ParseServerPair(p)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}

type levelValue struct{ l *zapcore.Level }

func (v levelValue) String() string     { return v.l.String() }
func (v levelValue) Set(s string) error { return v.l.UnmarshalText([]byte(s)) }
func (v levelValue) Type() string       { return "level" }

type rawFlags struct {
	servers  []string
	interval uint64
}

func newFlagSet(cfg *Config, raw *rawFlags) *pflag.FlagSet {
	flags := pflag.NewFlagSet("servicemonitor", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.SortFlags = false

	flags.StringArrayVarP(&raw.servers, "servers", "s", nil, `Servers to monitor as "server,app" pairs; repeatable, space-delimited`)
	flags.Uint64VarP(&raw.interval, "interval", "i", 180, "Interval in seconds between the end of a check and the next one")
	flags.StringVar(&cfg.Schedule, "schedule", "", "Cron expression for checks; overrides --interval")
	flags.StringVar(&cfg.ProbeMode, "probe", ProbeAuto, "Probe strategy: auto, ping or http")
	flags.DurationVar(&cfg.HTTPTimeout, "timeout", 5*time.Second, "HTTP probe timeout")
	flags.DurationVar(&cfg.PingTimeout, "ping-timeout", 2*time.Second, "Ping probe timeout")
	flags.BoolVar(&cfg.Privileged, "privileged", false, "Use raw ICMP sockets for ping")
	flags.IntVar(&cfg.Concurrency, "concurrency", 1, "Number of endpoints probed at the same time")
	flags.StringVar(&cfg.AlertMode, "alert-mode", "every-cycle", "When to notify: every-cycle or on-change")
	flags.BoolVar(&cfg.AlertOnRecovery, "alert-recovery", false, "Notify when an endpoint becomes Active again (on-change mode)")
	flags.BoolVar(&cfg.Desktop, "desktop", true, "Send desktop notifications")
	flags.StringVar(&cfg.SlackWebhook, "slack-webhook", "", "Slack incoming webhook URL for alerts")
	flags.StringVar(&cfg.ListenAddr, "listen", "", "Serve the read-only status API on this address")
	flags.StringArrayVar(&cfg.APIKeys, "api-key", nil, "API key required by the status API; repeatable")
	flags.StringVar(&cfg.LogDir, "log-dir", "", "Write JSON logs to rotating files in this directory")
	flags.Var(levelValue{&cfg.LogLevel}, "log-level", "Log level: debug, info, warn or error")
	flags.BoolVarP(&cfg.Once, "once", "1", false, "Check once and exit; exit code 1 unless every endpoint is Active")
	flags.BoolVarP(&cfg.ShowHelp, "help", "h", false, "Show help message")

	return flags
}

// Usage writes the flag help to w.
func Usage(w io.Writer) {
	cfg := Config{LogLevel: zapcore.WarnLevel}
	flags := newFlagSet(&cfg, &rawFlags{})
	fmt.Fprintf(w, "Usage: servicemonitor [flags] [server,app ...]\n\nFlags:\n%s", flags.FlagUsages())
}

// Parse reads the command line (without the program name). Positional
// arguments are taken as additional server pairs.
func Parse(args []string) (Config, error) {
	cfg := Config{LogLevel: zapcore.WarnLevel}
	var raw rawFlags
	flags := newFlagSet(&cfg, &raw)

	if err := flags.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.ShowHelp {
		return cfg, nil
	}

	servers, err := parseServerList(append(raw.servers, flags.Args()...))
	if err != nil {
		return cfg, err
	}
	if len(servers) == 0 {
		servers = DefaultServers()
	}
	cfg.Servers = servers

	if raw.interval == 0 || raw.interval > maxIntervalSeconds {
		return cfg, ErrInvalidInterval
	}
	cfg.Interval = time.Duration(raw.interval) * time.Second

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	if cfg.LogDir != "" && !flags.Changed("log-level") {
		cfg.LogLevel = zapcore.InfoLevel
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.ProbeMode {
	case ProbeAuto, ProbeHTTP, ProbePing:
	default:
		return fmt.Errorf("%w: --probe %q (want auto, ping or http)", ErrInvalidOption, c.ProbeMode)
	}
	switch c.AlertMode {
	case "every-cycle", "on-change":
	default:
		return fmt.Errorf("%w: --alert-mode %q (want every-cycle or on-change)", ErrInvalidOption, c.AlertMode)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: --concurrency must be at least 1", ErrInvalidOption)
	}
	if c.HTTPTimeout <= 0 || c.PingTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidOption)
	}
	return nil
}
