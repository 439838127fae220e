// Package scheduler runs a task on a fixed interval until the context
// is cancelled. Used for unattended periodic pipeline runs.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then once per interval. Task errors
// are logged, not fatal; the next tick still fires.
func Every(ctx context.Context, interval time.Duration, name string, log *slog.Logger, task Task) {
	if log == nil {
		log = slog.Default()
	}

	run := func() {
		if err := task(ctx); err != nil {
			log.Error("scheduled task failed", "task", name, "error", err)
		}
	}

	run()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}
