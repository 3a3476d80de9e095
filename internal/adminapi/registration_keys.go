package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/schoolbooks/admin-console/internal/audit"
)

// RegistrationKey lets students or teachers join a school.
type RegistrationKey struct {
	ID        audit.ID  `json:"id"`
	Key       string    `json:"key"`
	SchoolID  audit.ID  `json:"schoolId"`
	Role      string    `json:"role"`
	MaxUses   int       `json:"maxUses"`
	UsedCount int       `json:"usedCount"`
	StudentID *audit.ID `json:"studentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateKeyRequest is the body of a key creation call.
type CreateKeyRequest struct {
	SchoolID string `json:"schoolId"`
	Role     string `json:"role"`
	MaxUses  int    `json:"maxUses"`
}

// ListRegistrationKeys returns the keys of schoolID, or all keys when empty.
func (c *Client) ListRegistrationKeys(ctx context.Context, schoolID string) ([]RegistrationKey, error) {
	q := url.Values{}
	if schoolID != "" {
		q.Set("schoolId", schoolID)
	}
	env, err := c.doJSON(ctx, http.MethodGet, "/api/admin/registration-keys", "/api/admin/registration-keys", q, nil)
	if err != nil {
		return nil, err
	}

	list, ok := firstList(env.Data)
	if !ok {
		var nested struct {
			Keys  json.RawMessage `json:"keys"`
			Items json.RawMessage `json:"items"`
		}
		if err := env.decodeData(&nested); err != nil {
			return nil, NewAPIError(http.StatusOK, "unexpected registration key response", err)
		}
		if list, ok = firstList(nested.Keys, nested.Items); !ok {
			return nil, NewAPIError(http.StatusOK, "unexpected registration key response", fmt.Errorf("no keys list"))
		}
	}

	keys := []RegistrationKey{}
	if err := json.Unmarshal(list, &keys); err != nil {
		return nil, NewAPIError(http.StatusOK, "unexpected registration key response", err)
	}
	return keys, nil
}

// CreateRegistrationKey creates a key and returns it as stored.
func (c *Client) CreateRegistrationKey(ctx context.Context, req CreateKeyRequest) (*RegistrationKey, error) {
	if req.SchoolID == "" {
		return nil, fmt.Errorf("school id: %w", ErrMissingID)
	}
	env, err := c.doJSON(ctx, http.MethodPost, "/api/admin/registration-keys", "/api/admin/registration-keys", nil, req)
	if err != nil {
		return nil, err
	}
	var key RegistrationKey
	if err := env.decodeData(&key); err != nil {
		return nil, NewAPIError(http.StatusOK, "unexpected registration key response", err)
	}
	return &key, nil
}

// DeleteRegistrationKey removes a key.
func (c *Client) DeleteRegistrationKey(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	_, err := c.doJSON(ctx, http.MethodDelete, "/api/admin/registration-keys/:id",
		"/api/admin/registration-keys/"+url.PathEscape(id), nil, nil)
	return err
}

// AssignStudent binds a key to a student.
func (c *Client) AssignStudent(ctx context.Context, keyID, studentID string) error {
	if keyID == "" || studentID == "" {
		return ErrMissingID
	}
	body := map[string]string{"studentId": studentID}
	_, err := c.doJSON(ctx, http.MethodPost, "/api/admin/registration-keys/:id/assign",
		"/api/admin/registration-keys/"+url.PathEscape(keyID)+"/assign", nil, body)
	return err
}
