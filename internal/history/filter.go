// Package history is the audit-history view model: filter and paging state,
// page fetching, undo with an in-flight guard, auto-refresh and CSV export.
package history

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/schoolbooks/admin-console/internal/adminapi"
	"github.com/schoolbooks/admin-console/internal/config"
)

// DefaultLimit is the page size used when none is configured.
const DefaultLimit = 25

// ErrInvalidLimit is returned by SetLimit for sizes the endpoint does not accept.
var ErrInvalidLimit = errors.New("invalid page size")

// Filter is the query state of a history view. The zero value is not ready
// for use; create one with NewFilter.
//
// Every setter that changes the result set moves back to page 1.
type Filter struct {
	search     string
	action     string
	entityType string
	userID     string
	entityID   string
	startDate  time.Time
	endDate    time.Time
	page       int
	limit      int
}

// NewFilter returns an unfiltered filter on page 1. A limit outside
// config.AllowedPageSizes falls back to DefaultLimit.
func NewFilter(limit int) Filter {
	if !config.ValidPageSize(limit) {
		limit = DefaultLimit
	}
	return Filter{page: 1, limit: limit}
}

// Search returns the free-text search, "" when unset.
func (f Filter) Search() string { return f.search }

// Action returns the action tag filter, "" when unset.
func (f Filter) Action() string { return f.action }

// EntityType returns the entity tag filter, "" when unset.
func (f Filter) EntityType() string { return f.entityType }

// UserID returns the acting user filter, "" when unset.
func (f Filter) UserID() string { return f.userID }

// EntityID returns the affected entity filter, "" when unset.
func (f Filter) EntityID() string { return f.entityID }

// StartDate returns the inclusive lower bound; zero means open.
func (f Filter) StartDate() time.Time { return f.startDate }

// EndDate returns the inclusive upper bound; zero means open.
func (f Filter) EndDate() time.Time { return f.endDate }

// Page returns the 1-based page number.
func (f Filter) Page() int { return f.page }

// Limit returns the page size.
func (f Filter) Limit() int { return f.limit }

// SetSearch sets the free-text search. Matching is done by the backend.
func (f *Filter) SetSearch(s string) {
	f.search = s
	f.page = 1
}

// SetAction filters on the action tag; "" clears the filter.
func (f *Filter) SetAction(a string) {
	f.action = a
	f.page = 1
}

// SetEntityType filters on the entity tag; "" clears the filter.
func (f *Filter) SetEntityType(e string) {
	f.entityType = e
	f.page = 1
}

// SetUserID filters on the acting user; "" clears the filter.
func (f *Filter) SetUserID(id string) {
	f.userID = id
	f.page = 1
}

// SetEntityID filters on the affected entity; "" clears the filter.
func (f *Filter) SetEntityID(id string) {
	f.entityID = id
	f.page = 1
}

// SetDateRange limits results to [start, end]. Zero times leave that side open.
func (f *Filter) SetDateRange(start, end time.Time) {
	f.startDate = start
	f.endDate = end
	f.page = 1
}

// SetPage moves to page n, clamped to at least 1.
func (f *Filter) SetPage(n int) {
	f.page = max(n, 1)
}

// SetLimit changes the page size and returns to page 1.
func (f *Filter) SetLimit(n int) error {
	if !config.ValidPageSize(n) {
		return fmt.Errorf("%w: %d (allowed: %v)", ErrInvalidLimit, n, config.AllowedPageSizes)
	}
	f.limit = n
	f.page = 1
	return nil
}

// Reset clears every filter field, keeping the page size.
func (f *Filter) Reset() {
	*f = Filter{page: 1, limit: f.limit}
}

// Active reports whether any filter field is set.
func (f Filter) Active() bool {
	return f.search != "" || f.action != "" || f.entityType != "" ||
		f.userID != "" || f.entityID != "" ||
		!f.startDate.IsZero() || !f.endDate.IsZero()
}

// Query converts the filter into the admin API query.
func (f Filter) Query() adminapi.AuditLogQuery {
	return adminapi.AuditLogQuery{
		Page:       f.page,
		Limit:      f.limit,
		UserID:     strings.TrimSpace(f.userID),
		Action:     f.action,
		EntityType: f.entityType,
		EntityID:   strings.TrimSpace(f.entityID),
		Search:     f.search,
		StartDate:  f.startDate,
		EndDate:    f.endDate,
	}
}

func (f Filter) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("search", f.search)
	add("action", f.action)
	add("entityType", f.entityType)
	add("userId", f.userID)
	add("entityId", f.entityID)
	if !f.startDate.IsZero() {
		add("from", f.startDate.Format(time.DateOnly))
	}
	if !f.endDate.IsZero() {
		add("to", f.endDate.Format(time.DateOnly))
	}
	parts = append(parts, fmt.Sprintf("page=%d", f.page), fmt.Sprintf("limit=%d", f.limit))
	return strings.Join(parts, " ")
}
