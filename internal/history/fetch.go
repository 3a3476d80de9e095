package history

import (
	"context"
	"errors"

	"github.com/schoolbooks/admin-console/internal/adminapi"
)

// API is the part of the admin API the history view uses. *adminapi.Client
// implements it.
type API interface {
	ListAuditLogs(ctx context.Context, q adminapi.AuditLogQuery) (*adminapi.AuditLogPage, error)
	UndoAuditLog(ctx context.Context, id string) error
	ExportAuditLogs(ctx context.Context, q adminapi.AuditLogQuery) ([]byte, error)
}

var _ API = (*adminapi.Client)(nil)

// FetchPage loads the page f points at. It returns ErrAuthRequired as is, the
// context error when ctx ends first, and a *FetchError for everything else.
func FetchPage(ctx context.Context, api API, f Filter) (PageResult, error) {
	p, err := api.ListAuditLogs(ctx, f.Query())
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthRequired):
			return PageResult{}, ErrAuthRequired
		case ctx.Err() != nil:
			return PageResult{}, ctx.Err()
		}
		return PageResult{}, &FetchError{
			Message: userMessage(err, "failed to load audit history"),
			Err:     err,
		}
	}
	return newPageResult(p, f), nil
}
