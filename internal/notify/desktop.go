package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const DefaultDisplayDuration = 10 * time.Second

// Desktop shows notifications through the platform's notification command.
type Desktop struct {
	AppName  string
	Duration time.Duration

	goos string
	run  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewDesktop(appName string) *Desktop {
	return &Desktop{
		AppName:  appName,
		Duration: DefaultDisplayDuration,
		goos:     runtime.GOOS,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func (d *Desktop) command(title, text string) (string, []string) {
	switch d.goos {
	case "darwin":
		script := "display notification " + appleScriptQuote(text) + " with title " + appleScriptQuote(title)
		return "osascript", []string{"-e", script}
	case "windows":
		secs := strconv.Itoa(int(d.Duration / time.Second))
		return "msg", []string{"*", "/TIME:" + secs, title + "\n" + text}
	default:
		ms := strconv.FormatInt(d.Duration.Milliseconds(), 10)
		return "notify-send", []string{"--app-name", d.AppName, "--expire-time", ms, title, text}
	}
}

func (d *Desktop) Send(ctx context.Context, title, text string) error {
	ctx, cancel := context.WithTimeout(ctx, d.Duration)
	defer cancel()

	name, args := d.command(title, text)
	if out, err := d.run(ctx, name, args...); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("desktop notification via %s: %w", name, err)
		}
		return fmt.Errorf("desktop notification via %s: %w: %s", name, err, msg)
	}
	return nil
}
