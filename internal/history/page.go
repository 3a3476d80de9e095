package history

import (
	"github.com/schoolbooks/admin-console/internal/adminapi"
	"github.com/schoolbooks/admin-console/internal/audit"
)

// PageResult is one fetched page. Records keep the backend's order.
type PageResult struct {
	Records    []audit.Record
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// TotalPages is ceil(total/limit), and 0 for an empty result.
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// HasNext reports whether a later page exists.
func (p PageResult) HasNext() bool { return p.Page < p.TotalPages }

// HasPrev reports whether an earlier page exists.
func (p PageResult) HasPrev() bool { return p.Page > 1 }

// Empty reports whether the page has no records.
func (p PageResult) Empty() bool { return len(p.Records) == 0 }

func newPageResult(p *adminapi.AuditLogPage, f Filter) PageResult {
	res := PageResult{
		Records: p.Logs,
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   max(p.Total, 0),
	}
	if res.Page <= 0 {
		res.Page = f.page
	}
	if res.Limit <= 0 {
		res.Limit = f.limit
	}
	if res.Records == nil {
		res.Records = []audit.Record{}
	}
	if p.HasTotalPages {
		res.TotalPages = max(p.TotalPages, 0)
	} else {
		res.TotalPages = TotalPages(res.Total, res.Limit)
	}
	return res
}
