package history

import (
	"context"
	"errors"

	"github.com/go-co-op/gocron/v2"

	"github.com/schoolbooks/admin-console/internal/telemetry"
)

// startAutoRefresh schedules Refresh every RefreshInterval. Singleton mode
// keeps ticks from overlapping; the scheduler is shut down by Close.
func (v *View) startAutoRefresh() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = s.NewJob(
		gocron.DurationJob(v.opts.RefreshInterval),
		gocron.NewTask(v.refreshTick),
		gocron.WithName("history-auto-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		_ = s.Shutdown()
		return ErrClosed
	}
	v.scheduler = s
	v.mu.Unlock()

	s.Start()
	v.log.Debug("auto-refresh started", "interval", v.opts.RefreshInterval)
	return nil
}

func (v *View) refreshTick() {
	err := v.Refresh(v.life)
	var outcome string
	switch {
	case err == nil:
		outcome = "applied"
	case errors.Is(err, ErrRefreshSkipped):
		outcome = "skipped"
	case errors.Is(err, ErrStaleResponse):
		outcome = "stale"
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
		return
	default:
		outcome = "failed"
	}
	telemetry.RefreshTicksTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		v.log.Debug("auto-refresh tick", "outcome", outcome, "error", err)
	}
}

// Refresh re-fetches the current filter without passing through Loading.
// It returns ErrRefreshSkipped while an undo, mutation or other load is in
// flight. Failures other than ErrAuthRequired leave the view unchanged.
// Expanded detail panels are kept.
func (v *View) Refresh(ctx context.Context) error {
	return v.load(ctx, true)
}
