package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schoolbooks/admin-console/internal/audit"
)

// AuditEntryKey is the gin.Context key a handler uses to describe the change
// it made. See SetAuditEntry.
const AuditEntryKey = "audit_entry"

// Recorder persists audit records.
type Recorder interface {
	RecordAudit(ctx context.Context, rec audit.Record) (audit.Record, error)
}

// SetAuditEntry attaches rec to the request. AuditMiddleware completes it
// with the caller's identity and records it if the request succeeds.
func SetAuditEntry(c *gin.Context, rec audit.Record) {
	c.Set(AuditEntryKey, rec)
}

// AuditMiddleware records the entry a handler attached with SetAuditEntry
// once the handler has finished, for non-GET requests that completed with a
// status below 400. UserID comes from BearerAuth; the client IP, user agent
// and creation time are filled in when the handler left them empty.
func AuditMiddleware(rec Recorder, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			return
		}
		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		v, ok := c.Get(AuditEntryKey)
		if !ok {
			return
		}
		entry, ok := v.(audit.Record)
		if !ok {
			return
		}

		if entry.UserID == nil {
			if uid := c.GetString(UserIDKey); uid != "" {
				id := audit.ID(uid)
				entry.UserID = &id
			}
		}
		if entry.IPAddress == "" {
			entry.IPAddress = c.ClientIP()
		}
		if entry.UserAgent == "" {
			entry.UserAgent = c.Request.UserAgent()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}

		if _, err := rec.RecordAudit(c.Request.Context(), entry); err != nil {
			logger.Error("failed to record audit entry",
				"action", entry.Action,
				"entity_type", entry.EntityType,
				"request_id", RequestID(c),
				"error", err)
		}
	}
}
