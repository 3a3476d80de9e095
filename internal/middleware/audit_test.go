package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/schoolbooks/admin-console/internal/audit"
)

type captureRecorder struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (r *captureRecorder) RecordAudit(_ context.Context, rec audit.Record) (audit.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return audit.Record{}, r.err
	}
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *captureRecorder) all() []audit.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Record(nil), r.records...)
}

// newAuditRouter registers handler on method /thing with a fake identity.
func newAuditRouter(rec Recorder, method string, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(UserIDKey, "u-9")
		c.Next()
	})
	r.Use(AuditMiddleware(rec, nil))
	r.Handle(method, "/thing", handler)
	return r
}

func bookDeleted(status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := audit.ID("b-1")
		SetAuditEntry(c, audit.Record{
			Action:      audit.ActionDelete,
			EntityType:  audit.EntityBook,
			EntityID:    &id,
			Description: "Deleted book",
		})
		c.Status(status)
	}
}

// ---------------------------------------------------------------------------
// AuditMiddleware tests
// ---------------------------------------------------------------------------

func TestAuditMiddleware_RecordsSuccessfulWrite(t *testing.T) {
	rec := &captureRecorder{}
	r := newAuditRouter(rec, http.MethodDelete, bookDeleted(http.StatusOK))

	req := httptest.NewRequest(http.MethodDelete, "/thing", nil)
	req.Header.Set("User-Agent", "console-test")
	r.ServeHTTP(httptest.NewRecorder(), req)

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(got))
	}
	e := got[0]
	if e.Actor() != "u-9" {
		t.Errorf("actor = %q, want u-9", e.Actor())
	}
	if e.Entity() != "b-1" || e.Action != audit.ActionDelete {
		t.Errorf("entry = %+v", e)
	}
	if e.IPAddress == "" || e.UserAgent != "console-test" {
		t.Errorf("ip = %q, user agent = %q", e.IPAddress, e.UserAgent)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestAuditMiddleware_Skips(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		handler gin.HandlerFunc
	}{
		{"failed write", http.MethodDelete, bookDeleted(http.StatusConflict)},
		{"read", http.MethodGet, bookDeleted(http.StatusOK)},
		{"no entry", http.MethodPost, func(c *gin.Context) { c.Status(http.StatusCreated) }},
		{"wrong entry type", http.MethodPost, func(c *gin.Context) {
			c.Set(AuditEntryKey, "not a record")
			c.Status(http.StatusOK)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &captureRecorder{}
			r := newAuditRouter(rec, tt.method, tt.handler)
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, "/thing", nil))
			if n := len(rec.all()); n != 0 {
				t.Errorf("recorded %d entries, want 0", n)
			}
		})
	}
}

func TestAuditMiddleware_KeepsHandlerIdentity(t *testing.T) {
	rec := &captureRecorder{}
	r := newAuditRouter(rec, http.MethodPost, func(c *gin.Context) {
		system := audit.ID("")
		SetAuditEntry(c, audit.Record{Action: "undo", EntityType: audit.EntityBook, UserID: &system, IPAddress: "10.0.0.1"})
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/thing", nil))

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(got))
	}
	if got[0].Actor() != "system" || got[0].IPAddress != "10.0.0.1" {
		t.Errorf("entry = %+v, handler-provided fields overwritten", got[0])
	}
}

func TestAuditMiddleware_RecorderErrorDoesNotChangeResponse(t *testing.T) {
	rec := &captureRecorder{err: errors.New("store closed")}
	r := newAuditRouter(rec, http.MethodDelete, bookDeleted(http.StatusOK))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/thing", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
