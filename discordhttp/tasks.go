package discordhttp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/robfig/cron/v3"
)

// TaskFunc is a background task body. The context is canceled when the
// client stops.
type TaskFunc func(ctx context.Context) error

// taskRunner schedules background tasks on a cron scheduler. Tasks are
// registered before Run and started alongside the HTTP server, so a bot
// can refresh caches or rotate status on a loop without managing its own
// goroutines.
type taskRunner struct {
	mu      sync.Mutex
	cron    *cron.Cron
	logger  *slog.Logger
	onError func(ctx context.Context, event string, err error)

	ctx     context.Context
	started bool
}

func newTaskRunner(
	logger *slog.Logger,
	onError func(ctx context.Context, event string, err error),
) *taskRunner {
	return &taskRunner{
		cron: cron.New(
			cron.WithParser(
				cron.NewParser(
					cron.Minute | cron.Hour | cron.Dom |
						cron.Month | cron.Dow | cron.Descriptor,
				),
			),
		),
		logger:  logger.With(loggerNameKey, "tasks"),
		onError: onError,
	}
}

// add schedules fn per the cron spec ("*/5 * * * *", "@every 30s", ...).
func (t *taskRunner) add(name string, spec string, fn TaskFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return fmt.Errorf("cannot add task %q after start", name)
	}

	_, err := t.cron.AddFunc(
		spec, func() {
			t.runTask(name, fn)
		},
	)
	if err != nil {
		return fmt.Errorf("error scheduling task %q: %w", name, err)
	}
	t.logger.Info("task scheduled", "task", name, "spec", spec)
	return nil
}

// addInterval schedules fn to run every interval, the common loop shape.
func (t *taskRunner) addInterval(
	name string,
	interval time.Duration,
	fn TaskFunc,
) error {
	return t.add(name, fmt.Sprintf("@every %s", interval), fn)
}

// runTask runs one task invocation, recovering panics and reporting
// failures through the event-error path.
func (t *taskRunner) runTask(name string, fn TaskFunc) {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if rc := recover(); rc != nil {
			err := fmt.Errorf("task %q panic: %v", name, rc)
			t.logger.ErrorContext(ctx, "task panicked", "task", name, tint.Err(err))
			if t.onError != nil {
				t.onError(ctx, "task:"+name, err)
			}
		}
	}()

	started := time.Now()
	t.logger.DebugContext(ctx, "task starting", "task", name)
	if err := fn(ctx); err != nil {
		t.logger.ErrorContext(
			ctx,
			"task failed",
			"task", name,
			"elapsed", time.Since(started),
			tint.Err(err),
		)
		if t.onError != nil {
			t.onError(ctx, "task:"+name, err)
		}
		return
	}
	t.logger.DebugContext(
		ctx,
		"task finished",
		"task", name,
		"elapsed", time.Since(started),
	)
}

// start begins running scheduled tasks with the given lifetime context.
func (t *taskRunner) start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.ctx = ctx
	t.started = true
	t.cron.Start()
}

// stop halts scheduling and waits for running tasks to return.
func (t *taskRunner) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return
	}
	stopCtx := t.cron.Stop()
	<-stopCtx.Done()
	t.started = false
}
