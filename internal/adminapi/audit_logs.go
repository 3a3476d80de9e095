package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/schoolbooks/admin-console/internal/audit"
)

// AuditLogQuery is the set of filters the audit-log endpoints accept.
// Empty strings and zero times are omitted from the request.
type AuditLogQuery struct {
	Page       int
	Limit      int
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	Search     string
	StartDate  time.Time
	EndDate    time.Time
}

// FilterValues encodes the non-empty filters, without paging.
func (q AuditLogQuery) FilterValues() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("userId", q.UserID)
	set("action", q.Action)
	set("entityType", q.EntityType)
	set("entityId", q.EntityID)
	set("search", q.Search)
	if !q.StartDate.IsZero() {
		v.Set("startDate", q.StartDate.UTC().Format(time.RFC3339))
	}
	if !q.EndDate.IsZero() {
		v.Set("endDate", q.EndDate.UTC().Format(time.RFC3339))
	}
	return v
}

// Values encodes paging plus the non-empty filters.
func (q AuditLogQuery) Values() url.Values {
	v := q.FilterValues()
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// AuditLogPage is one page of audit records, normalised from whichever
// response shape the backend used.
type AuditLogPage struct {
	Logs  []audit.Record
	Page  int
	Limit int
	Total int
	// TotalPages is only meaningful when HasTotalPages is set.
	TotalPages    int
	HasTotalPages bool
}

// ListAuditLogs fetches one page of audit records.
func (c *Client) ListAuditLogs(ctx context.Context, q AuditLogQuery) (*AuditLogPage, error) {
	env, err := c.doJSON(ctx, http.MethodGet, "/api/admin/audit-logs", "/api/admin/audit-logs", q.Values(), nil)
	if err != nil {
		return nil, err
	}
	page, err := decodeAuditPage(env, q)
	if err != nil {
		return nil, NewAPIError(http.StatusOK, "unexpected audit log response", err)
	}
	return page, nil
}

// decodeAuditPage accepts
//
//	{data: [...], pagination: {...}}
//	{data: {logs|items|records: [...], pagination: {...}}}
//	{data: {logs: [...], total, page, limit, totalPages}}
func decodeAuditPage(env *envelope, q AuditLogQuery) (*AuditLogPage, error) {
	if isNull(env.Data) {
		return nil, fmt.Errorf("response has no data")
	}

	pg := env.Pagination
	list, ok := firstList(env.Data)
	if !ok {
		var nested struct {
			Logs       json.RawMessage `json:"logs"`
			Items      json.RawMessage `json:"items"`
			Records    json.RawMessage `json:"records"`
			Pagination *wirePagination `json:"pagination"`
			Page       *int            `json:"page"`
			Limit      *int            `json:"limit"`
			Total      *int            `json:"total"`
			TotalPages *int            `json:"totalPages"`
		}
		if err := json.Unmarshal(env.Data, &nested); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
		list, ok = firstList(nested.Logs, nested.Items, nested.Records)
		if !ok {
			return nil, fmt.Errorf("data carries no logs, items or records list")
		}
		switch {
		case nested.Pagination != nil:
			pg = nested.Pagination
		case nested.Total != nil:
			pg = &wirePagination{Total: *nested.Total, TotalPages: nested.TotalPages}
			if nested.Page != nil {
				pg.Page = *nested.Page
			}
			if nested.Limit != nil {
				pg.Limit = *nested.Limit
			}
		}
	}

	page := &AuditLogPage{Page: q.Page, Limit: q.Limit}
	if err := json.Unmarshal(list, &page.Logs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if page.Logs == nil {
		page.Logs = []audit.Record{}
	}

	if pg == nil {
		page.Total = len(page.Logs)
		return page, nil
	}
	if pg.Page > 0 {
		page.Page = pg.Page
	}
	if pg.Limit > 0 {
		page.Limit = pg.Limit
	}
	page.Total = max(pg.Total, 0)
	if pg.TotalPages != nil {
		page.TotalPages = *pg.TotalPages
		page.HasTotalPages = true
	}
	return page, nil
}

// UndoAuditLog asks the backend to reverse the change recorded by id.
func (c *Client) UndoAuditLog(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	path := "/api/admin/audit-logs/" + url.PathEscape(id) + "/undo"
	_, err := c.doJSON(ctx, http.MethodPost, "/api/admin/audit-logs/:id/undo", path, nil, nil)
	return err
}

// ExportAuditLogs downloads the server-rendered CSV of every record matching
// the filters in q (paging is ignored). The body is read fully so a failure
// part way through never yields a truncated export. A JSON body is the
// backend's envelope, never CSV: success:false becomes an *APIError.
func (c *Client) ExportAuditLogs(ctx context.Context, q AuditLogQuery) ([]byte, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/audit/export", "/api/audit/export", "text/csv", q.FilterValues(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBytes+1))
	if err != nil {
		return nil, NewAPIError(resp.StatusCode, "export download interrupted", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewAPIError(resp.StatusCode, errorMessage(data, resp.StatusCode), nil)
	}
	if int64(len(data)) > maxExportBytes {
		return nil, NewAPIError(resp.StatusCode, fmt.Sprintf("export exceeds %d MiB", maxExportBytes>>20), nil)
	}
	if isJSON(resp.Header.Get("Content-Type")) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, NewAPIError(resp.StatusCode, "invalid response from admin api", err)
		}
		if env.Success != nil && !*env.Success {
			return nil, NewAPIError(resp.StatusCode, env.message("export failed"), nil)
		}
		return nil, NewAPIError(resp.StatusCode, "export returned JSON instead of CSV", nil)
	}
	return data, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}
