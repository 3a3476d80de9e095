package adminapi

import (
	"errors"

	"github.com/schoolbooks/admin-console/internal/session"
)

var (
	// ErrAuthRequired is returned before sending when no usable token is
	// available, and for any 401 response.
	ErrAuthRequired = session.ErrAuthRequired

	ErrMissingBaseURL = errors.New("admin api base URL is required")
	ErrMissingID      = errors.New("identifier is required")
)

// APIError is a failed admin API call. StatusCode is 0 when no response was
// received. Message is the backend's error text when it supplied one.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new API error
func NewAPIError(statusCode int, message string, err error) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// Message extracts the user-facing text of err: the APIError message when
// there is one, otherwise err.Error().
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
