package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RestartPolicy bounds how often a supervised task may be restarted.
// Restarts inside Window count against MaxRestarts; the counter resets once
// a restart falls outside the window. Backoff doubles per consecutive
// restart, capped at MaxBackoff.
type RestartPolicy struct {
	MaxRestarts    int
	Window         time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRestartPolicy allows five restarts per hour starting at a one
// second backoff.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		MaxRestarts:    5,
		Window:         time.Hour,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

func (p RestartPolicy) normalized() RestartPolicy {
	n := p
	d := DefaultRestartPolicy()
	if n.MaxRestarts <= 0 {
		n.MaxRestarts = d.MaxRestarts
	}
	if n.Window <= 0 {
		n.Window = d.Window
	}
	if n.InitialBackoff <= 0 {
		n.InitialBackoff = d.InitialBackoff
	}
	if n.MaxBackoff <= 0 {
		n.MaxBackoff = d.MaxBackoff
	}
	return n
}

// Supervise runs task and restarts it when it fails or panics, under the
// restart policy. A nil return from the task (clean exit, normally context
// cancellation) stops supervision. Exceeding the restart budget returns an
// error so the failure is visible instead of looping silently forever.
func Supervise(ctx context.Context, name string, policy RestartPolicy, task func(ctx context.Context) error) error {
	policy = policy.normalized()

	restarts := 0
	windowStart := time.Now()
	backoff := policy.InitialBackoff

	for {
		err := runRecovered(ctx, task)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		now := time.Now()
		if now.Sub(windowStart) > policy.Window {
			restarts = 0
			windowStart = now
			backoff = policy.InitialBackoff
		}

		restarts++
		if restarts > policy.MaxRestarts {
			return fmt.Errorf("supervisor %s: giving up after %d restarts in %s: %w",
				name, restarts-1, policy.Window, err)
		}

		slog.Error("[Supervisor] Task failed, restarting",
			"task", name,
			"restart", restarts,
			"max_restarts", policy.MaxRestarts,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
}

// runRecovered converts a task panic into an error so a crash inside a pass
// is restarted under the same budget instead of taking the process down.
func runRecovered(ctx context.Context, task func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}
