package history

import (
	"errors"

	"github.com/schoolbooks/admin-console/internal/adminapi"
)

var (
	// ErrAuthRequired is surfaced unwrapped whenever the session has no usable
	// token or the backend answered 401.
	ErrAuthRequired = adminapi.ErrAuthRequired

	ErrUndoInProgress     = errors.New("undo already in progress for this record")
	ErrMutationInProgress = errors.New("another change is already in progress")
	ErrStaleResponse      = errors.New("response superseded by a newer request")
	ErrRefreshSkipped     = errors.New("refresh skipped while another operation is in flight")
	ErrClosed             = errors.New("history view is closed")
)

// FetchError is a failed page load. Message is the backend's text when it
// supplied one.
type FetchError struct {
	Message string
	Err     error
}

func (e *FetchError) Error() string { return e.Message }
func (e *FetchError) Unwrap() error { return e.Err }

// UndoError is a failed undo. The record list is left as it was.
type UndoError struct {
	RecordID string
	Message  string
	Err      error
}

func (e *UndoError) Error() string { return "undo " + e.RecordID + ": " + e.Message }
func (e *UndoError) Unwrap() error { return e.Err }

// ExportError is a failed export. Nothing was written to the destination.
type ExportError struct {
	Message string
	Err     error
}

func (e *ExportError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ExportError) Unwrap() error { return e.Err }

// userMessage picks the backend message when there is one, else fallback.
func userMessage(err error, fallback string) string {
	var apiErr *adminapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
