package history

import (
	"testing"

	"github.com/schoolbooks/admin-console/internal/adminapi"
)

func TestTotalPages(t *testing.T) {
	tests := []struct{ total, limit, want int }{
		{0, 25, 0},
		{1, 25, 1},
		{25, 25, 1},
		{26, 25, 2},
		{101, 25, 5},
		{100, 10, 10},
		{3, 0, 0},
		{-4, 25, 0},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.limit); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.limit, got, tt.want)
		}
	}
}

func TestNewPageResult(t *testing.T) {
	f := NewFilter(25)
	f.SetPage(3)

	t.Run("derived total pages", func(t *testing.T) {
		res := newPageResult(&adminapi.AuditLogPage{Total: 101, Page: 3, Limit: 25}, f)
		if res.TotalPages != 5 {
			t.Errorf("TotalPages = %d, want 5", res.TotalPages)
		}
		if res.Records == nil {
			t.Error("Records is nil, want empty slice")
		}
		if !res.HasNext() || !res.HasPrev() {
			t.Errorf("HasNext=%v HasPrev=%v on page 3 of 5", res.HasNext(), res.HasPrev())
		}
	})

	t.Run("backend total pages taken as is", func(t *testing.T) {
		res := newPageResult(&adminapi.AuditLogPage{Total: 101, Page: 3, Limit: 25, TotalPages: 9, HasTotalPages: true}, f)
		if res.TotalPages != 9 {
			t.Errorf("TotalPages = %d, want 9", res.TotalPages)
		}
	})

	t.Run("missing paging falls back to filter", func(t *testing.T) {
		res := newPageResult(&adminapi.AuditLogPage{Logs: records("x", 2), Total: 2}, f)
		if res.Page != 3 || res.Limit != 25 {
			t.Errorf("page/limit = %d/%d, want 3/25", res.Page, res.Limit)
		}
		if res.Empty() {
			t.Error("Empty() on a page with records")
		}
	})

	t.Run("negative total clamped", func(t *testing.T) {
		res := newPageResult(&adminapi.AuditLogPage{Total: -1}, f)
		if res.Total != 0 || res.TotalPages != 0 || !res.Empty() {
			t.Errorf("res = %+v", res)
		}
	})
}
