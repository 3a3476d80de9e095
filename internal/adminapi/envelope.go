package adminapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the backend's response wrapper. error may be a string or an
// object with a message field.
type envelope struct {
	Success    *bool           `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination *wirePagination `json:"pagination"`
	Error      json.RawMessage `json:"error"`
	Message    string          `json:"message"`
}

type wirePagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages *int `json:"totalPages"`
}

func (e *envelope) message(fallback string) string {
	if msg := rawMessage(e.Error); msg != "" {
		return msg
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return fallback
}

// decodeData unmarshals the data field into out.
func (e *envelope) decodeData(out any) error {
	if isNull(e.Data) {
		return fmt.Errorf("response has no data")
	}
	return json.Unmarshal(e.Data, out)
}

func rawMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return ""
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}

// errorMessage picks the backend message from a failed response body.
func errorMessage(body []byte, status int) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if msg := env.message(""); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("admin api returned status %d", status)
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// firstList returns the first candidate that holds a JSON array.
func firstList(candidates ...json.RawMessage) (json.RawMessage, bool) {
	for _, c := range candidates {
		t := bytes.TrimSpace(c)
		if len(t) > 0 && t[0] == '[' {
			return t, true
		}
	}
	return nil, false
}
