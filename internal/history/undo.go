package history

import (
	"context"
	"errors"

	"github.com/schoolbooks/admin-console/internal/telemetry"
)

// Undo asks the backend to reverse the change recorded by id, then reloads
// the current page. Eligibility is not re-checked here; the backend decides.
//
// A second Undo for the same id while the first is in flight returns
// ErrUndoInProgress without calling the backend. Undos for different ids run
// in parallel. A failed undo returns *UndoError (or ErrAuthRequired) and
// leaves the displayed page untouched.
//
// The follow-up reload's outcome is reflected in the view state; Undo itself
// reports only the undo call.
func (v *View) Undo(ctx context.Context, id string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if _, busy := v.undoing[id]; busy {
		v.mu.Unlock()
		telemetry.UndoRequestsTotal.WithLabelValues("in_progress").Inc()
		v.log.Debug("undo already in progress", "record_id", id)
		return ErrUndoInProgress
	}
	v.undoing[id] = struct{}{}
	v.mutating++
	v.publishLocked()
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		delete(v.undoing, id)
		v.mutating--
		if !v.closed {
			v.publishLocked()
		}
		v.mu.Unlock()
	}()

	bctx, cancel := v.bind(ctx)
	err := v.api.UndoAuditLog(bctx, id)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAuthRequired) {
			telemetry.UndoRequestsTotal.WithLabelValues("auth_required").Inc()
			return ErrAuthRequired
		}
		telemetry.UndoRequestsTotal.WithLabelValues("failed").Inc()
		v.log.Warn("undo failed", "record_id", id, "error", err)
		return &UndoError{
			RecordID: id,
			Message:  userMessage(err, "undo failed"),
			Err:      err,
		}
	}

	telemetry.UndoRequestsTotal.WithLabelValues("success").Inc()
	v.log.Info("undo applied", "record_id", id)

	if err := v.load(ctx, false); err != nil && !errors.Is(err, ErrStaleResponse) {
		v.log.Debug("reload after undo failed", "record_id", id, "error", err)
	}
	return nil
}

// Mutate runs a state-changing operation such as a bulk text replace and
// reloads the current page when it succeeds. Only one Mutate runs at a time;
// a concurrent call returns ErrMutationInProgress. Auto-refresh is held off
// until fn and its reload complete.
func (v *View) Mutate(ctx context.Context, name string, fn func(context.Context) error) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.bulk {
		v.mu.Unlock()
		return ErrMutationInProgress
	}
	v.bulk = true
	v.mutating++
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.bulk = false
		v.mutating--
		v.mu.Unlock()
	}()

	bctx, cancel := v.bind(ctx)
	err := fn(bctx)
	cancel()
	if err != nil {
		v.log.Warn("mutation failed", "operation", name, "error", err)
		return err
	}
	v.log.Info("mutation applied", "operation", name)

	if err := v.load(ctx, false); err != nil && !errors.Is(err, ErrStaleResponse) {
		v.log.Debug("reload after mutation failed", "operation", name, "error", err)
	}
	return nil
}

// Busy reports whether an undo or other mutation is in flight.
func (v *View) Busy() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mutating > 0
}
