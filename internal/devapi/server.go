package devapi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schoolbooks/admin-console/internal/audit"
	"github.com/schoolbooks/admin-console/internal/middleware"
	"github.com/schoolbooks/admin-console/internal/session"
)

// Paging limits of the list endpoint.
const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ExportHeader is the column row of GET /api/audit/export.
var ExportHeader = []string{"id", "createdAt", "userId", "action", "entityType", "entityId", "description", "ipAddress", "userAgent"}

// Options configures NewRouter.
type Options struct {
	// Token is a static bearer token accepted for user StaticUserID.
	Token        string
	StaticUserID string
	// JWTSecret enables HS256 bearer tokens and POST /api/dev/token.
	JWTSecret string
	Logger    *slog.Logger
	// NestedShape serves audit pages as {data: {logs, pagination}} instead
	// of {data: [...], pagination}.
	NestedShape bool
}

// Handlers serves the admin API endpoints from a Store.
type Handlers struct {
	store *Store
	opts  Options
	log   *slog.Logger
}

// NewRouter builds the gin engine for store.
func NewRouter(store *Store, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Handlers{store: store, opts: opts, log: opts.Logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	r.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, http.StatusNotFound, "Not found")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.JWTSecret != "" {
		r.POST("/api/dev/token", h.IssueTokenHandler())
	}

	api := r.Group("/api")
	api.Use(middleware.BearerAuth(middleware.AuthConfig{
		Token:        opts.Token,
		StaticUserID: opts.StaticUserID,
		JWTSecret:    opts.JWTSecret,
	}))
	api.Use(middleware.AuditMiddleware(store, opts.Logger))
	{
		api.GET("/admin/audit-logs", h.ListAuditLogsHandler())
		api.POST("/admin/audit-logs/:id/undo", h.UndoHandler())
		api.GET("/audit/export", h.ExportHandler())

		api.GET("/admin/registration-keys", h.ListKeysHandler())
		api.POST("/admin/registration-keys", h.CreateKeyHandler())
		api.DELETE("/admin/registration-keys/:id", h.DeleteKeyHandler())
		api.POST("/admin/registration-keys/:id/assign", h.AssignStudentHandler())

		api.GET("/admin/books/:bookId", h.GetBookHandler())
		api.POST("/admin/books/:bookId/replace", h.ReplaceTextHandler())
	}
	return r
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// storeError maps Store errors to statuses.
func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		middleware.AbortWithError(c, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrNotUndoable), errors.Is(err, ErrInvalidInput):
		middleware.AbortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyUndone):
		middleware.AbortWithError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		middleware.AbortWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}

// parseFilters reads the audit-log filter parameters. Dates accept RFC 3339
// or YYYY-MM-DD; a date-only endDate covers the whole day.
func parseFilters(c *gin.Context) (AuditFilters, error) {
	f := AuditFilters{
		UserID:     c.Query("userId"),
		Action:     c.Query("action"),
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		Search:     c.Query("search"),
	}
	var err error
	if f.StartDate, err = parseDate(c.Query("startDate"), false); err != nil {
		return f, fmt.Errorf("invalid startDate: %w", err)
	}
	if f.EndDate, err = parseDate(c.Query("endDate"), true); err != nil {
		return f, fmt.Errorf("invalid endDate: %w", err)
	}
	return f, nil
}

func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// ListAuditLogsHandler lists audit records, newest first.
// GET /api/admin/audit-logs?page=1&limit=25&action=&entityType=&search=...
func (h *Handlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "page must be an integer")
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "limit must be an integer")
			return
		}
		page = max(page, 1)
		if limit < 1 {
			limit = DefaultLimit
		}
		limit = min(limit, MaxLimit)

		filters, err := parseFilters(c)
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		logs, total := h.store.ListAuditLogs(filters, limit, (page-1)*limit)
		pagination := gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + limit - 1) / limit,
		}
		if h.opts.NestedShape {
			ok(c, http.StatusOK, gin.H{"logs": logs, "pagination": pagination})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": logs, "pagination": pagination})
	}
}

// UndoHandler reverses the change recorded by an audit record and records
// the undo itself.
// POST /api/admin/audit-logs/:id/undo
func (h *Handlers) UndoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := audit.ID(c.Param("id"))
		rec, err := h.store.Undo(id)
		if err != nil {
			storeError(c, err)
			return
		}
		middleware.SetAuditEntry(c, rec)
		h.log.Info("audit change undone", "record_id", id, "undo_id", rec.ID, "request_id", middleware.RequestID(c))
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Change undone",
			"data":    gin.H{"undoneLogId": id, "undoLogId": rec.ID},
		})
	}
}

// ExportHandler renders every record matching the filters as CSV.
// GET /api/audit/export?action=&entityType=&search=...
func (h *Handlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters, err := parseFilters(c)
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		logs := h.store.Matching(filters)

		name := "audit_logs_" + time.Now().UTC().Format(time.DateOnly) + ".csv"
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Status(http.StatusOK)

		w := csv.NewWriter(c.Writer)
		_ = w.Write(ExportHeader)
		for _, r := range logs {
			var uid string
			if r.UserID != nil {
				uid = string(*r.UserID)
			}
			_ = w.Write([]string{
				string(r.ID),
				r.CreatedAt.UTC().Format(time.RFC3339),
				uid,
				string(r.Action),
				string(r.EntityType),
				r.Entity(),
				r.Description,
				r.IPAddress,
				r.UserAgent,
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			h.log.Warn("export stream interrupted", "error", err, "request_id", middleware.RequestID(c))
		}
	}
}

// ListKeysHandler lists registration keys.
// GET /api/admin/registration-keys?schoolId=
func (h *Handlers) ListKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, http.StatusOK, h.store.ListKeys(c.Query("schoolId")))
	}
}

// CreateKeyHandler creates a registration key.
// POST /api/admin/registration-keys {schoolId, role, maxUses}
func (h *Handlers) CreateKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SchoolID string `json:"schoolId"`
			Role     string `json:"role"`
			MaxUses  int    `json:"maxUses"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Role == "" {
			req.Role = "student"
		}
		if req.MaxUses == 0 {
			req.MaxUses = 1
		}
		k, err := h.store.CreateKey(req.SchoolID, req.Role, req.MaxUses)
		if err != nil {
			storeError(c, err)
			return
		}
		middleware.SetAuditEntry(c, audit.Record{
			Action:      "created",
			EntityType:  audit.EntityRegistrationKey,
			EntityID:    &k.ID,
			Description: fmt.Sprintf("Created %s registration key for school %s", k.Role, k.SchoolID),
		})
		ok(c, http.StatusCreated, k)
	}
}

// DeleteKeyHandler removes a registration key.
// DELETE /api/admin/registration-keys/:id
func (h *Handlers) DeleteKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		k, err := h.store.DeleteKey(c.Param("id"))
		if err != nil {
			storeError(c, err)
			return
		}
		middleware.SetAuditEntry(c, audit.Record{
			Action:      "deleted",
			EntityType:  audit.EntityRegistrationKey,
			EntityID:    &k.ID,
			Description: fmt.Sprintf("Deleted registration key %s", k.Key),
			ExtraData:   audit.ValueOf(map[string]any{"snapshot": k}),
		})
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Registration key deleted"})
	}
}

// AssignStudentHandler binds a key to a student.
// POST /api/admin/registration-keys/:id/assign {studentId}
func (h *Handlers) AssignStudentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			StudentID string `json:"studentId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
		k, err := h.store.AssignStudent(c.Param("id"), req.StudentID)
		if err != nil {
			storeError(c, err)
			return
		}
		middleware.SetAuditEntry(c, audit.Record{
			Action:      "updated",
			EntityType:  audit.EntityRegistrationKey,
			EntityID:    &k.ID,
			Description: fmt.Sprintf("Assigned registration key %s to student %s", k.Key, req.StudentID),
			ExtraData: audit.ValueOf(map[string]any{"changes": []audit.FieldChange{
				{Field: "studentId", OldValue: audit.ValueOf(nil), NewValue: audit.ValueOf(req.StudentID)},
			}}),
		})
		ok(c, http.StatusOK, k)
	}
}

// GetBookHandler returns a book with its blocks.
// GET /api/admin/books/:bookId
func (h *Handlers) GetBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := h.store.GetBook(c.Param("bookId"))
		if err != nil {
			storeError(c, err)
			return
		}
		ok(c, http.StatusOK, b)
	}
}

// ReplaceTextHandler runs a find/replace across a book's blocks. Replacements
// that change nothing are not audited.
// POST /api/admin/books/:bookId/replace {find, replace, caseSensitive}
func (h *Handlers) ReplaceTextHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Find          string `json:"find"`
			Replace       string `json:"replace"`
			CaseSensitive bool   `json:"caseSensitive"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
		bookID := c.Param("bookId")
		n, changes, err := h.store.ReplaceText(bookID, req.Find, req.Replace, req.CaseSensitive)
		if err != nil {
			storeError(c, err)
			return
		}
		if n > 0 {
			id := audit.ID(bookID)
			middleware.SetAuditEntry(c, audit.Record{
				Action:      "updated",
				EntityType:  audit.EntityBook,
				EntityID:    &id,
				Description: fmt.Sprintf("Replaced %q with %q in %d places", req.Find, req.Replace, n),
				ExtraData:   audit.ValueOf(map[string]any{"changes": changes}),
			})
		}
		ok(c, http.StatusOK, gin.H{"replacedCount": n})
	}
}

// IssueTokenHandler signs a development JWT for any user.
// POST /api/dev/token {userId, role}
func (h *Handlers) IssueTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UserID string `json:"userId"`
			Role   string `json:"role"`
			TTL    string `json:"ttl"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
			middleware.AbortWithError(c, http.StatusBadRequest, "userId is required")
			return
		}
		ttl := time.Hour
		if req.TTL != "" {
			d, err := time.ParseDuration(req.TTL)
			if err != nil || d <= 0 {
				middleware.AbortWithError(c, http.StatusBadRequest, "ttl must be a positive duration")
				return
			}
			ttl = d
		}
		if req.Role == "" {
			req.Role = "admin"
		}
		tok, err := session.IssueToken(h.opts.JWTSecret, req.UserID, req.Role, ttl)
		if err != nil {
			storeError(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"token": tok, "expiresIn": int(ttl.Seconds())})
	}
}
