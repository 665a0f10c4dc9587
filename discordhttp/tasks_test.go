package discordhttp

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunnerRunsScheduledTask(t *testing.T) {
	runner := newTaskRunner(slog.Default(), nil)

	var runs atomic.Int64
	require.NoError(
		t, runner.addInterval(
			"counter", time.Second, func(context.Context) error {
				runs.Add(1)
				return nil
			},
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.start(ctx)
	defer runner.stop()

	assert.Eventually(
		t, func() bool {
			return runs.Load() >= 1
		}, 5*time.Second, 50*time.Millisecond,
	)
}

func TestTaskRunnerRejectsInvalidSpec(t *testing.T) {
	runner := newTaskRunner(slog.Default(), nil)
	err := runner.add(
		"bad", "not a cron spec", func(context.Context) error {
			return nil
		},
	)
	assert.Error(t, err)
}

func TestTaskRunnerRejectsAddAfterStart(t *testing.T) {
	runner := newTaskRunner(slog.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.start(ctx)
	defer runner.stop()

	err := runner.addInterval(
		"late", time.Minute, func(context.Context) error {
			return nil
		},
	)
	assert.Error(t, err)
}

func TestTaskRunnerReportsFailures(t *testing.T) {
	var gotEvent string
	var gotErr error
	runner := newTaskRunner(
		slog.Default(), func(_ context.Context, event string, err error) {
			gotEvent = event
			gotErr = err
		},
	)

	boom := errors.New("boom")
	runner.runTask(
		"failing", func(context.Context) error {
			return boom
		},
	)

	assert.Equal(t, "task:failing", gotEvent)
	assert.ErrorIs(t, gotErr, boom)
}

func TestTaskRunnerRecoversPanics(t *testing.T) {
	var gotErr error
	runner := newTaskRunner(
		slog.Default(), func(_ context.Context, _ string, err error) {
			gotErr = err
		},
	)

	runner.runTask(
		"panicky", func(context.Context) error {
			panic("task bug")
		},
	)

	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "task bug")
}
