package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/schoolbooks/admin-console/internal/adminapi"
	"github.com/schoolbooks/admin-console/internal/audit"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func testOptions() Options {
	return Options{Logger: quietLogger(), Now: func() time.Time { return fixedNow }}
}

func records(prefix string, n int) []audit.Record {
	out := make([]audit.Record, n)
	for i := range n {
		uid := audit.ID("u1")
		eid := audit.ID(fmt.Sprintf("%s-e%d", prefix, i))
		out[i] = audit.Record{
			ID:          audit.ID(fmt.Sprintf("%s-%d", prefix, i)),
			UserID:      &uid,
			Action:      "updated",
			EntityType:  audit.EntityBook,
			EntityID:    &eid,
			Description: "Updated " + prefix,
			IPAddress:   "10.0.0.1",
			CreatedAt:   fixedNow.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func pageOf(recs []audit.Record, q adminapi.AuditLogQuery) *adminapi.AuditLogPage {
	return &adminapi.AuditLogPage{Logs: recs, Page: q.Page, Limit: q.Limit, Total: len(recs)}
}

// stubAPI answers with fixed functions and counts calls.
type stubAPI struct {
	mu      sync.Mutex
	list    func(ctx context.Context, q adminapi.AuditLogQuery) (*adminapi.AuditLogPage, error)
	undo    func(ctx context.Context, id string) error
	export  func(ctx context.Context, q adminapi.AuditLogQuery) ([]byte, error)
	queries []adminapi.AuditLogQuery
	undos   []string
}

func (s *stubAPI) ListAuditLogs(ctx context.Context, q adminapi.AuditLogQuery) (*adminapi.AuditLogPage, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	fn := s.list
	s.mu.Unlock()
	if fn == nil {
		return pageOf(records("r", 3), q), nil
	}
	return fn(ctx, q)
}

func (s *stubAPI) UndoAuditLog(ctx context.Context, id string) error {
	s.mu.Lock()
	s.undos = append(s.undos, id)
	fn := s.undo
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, id)
}

func (s *stubAPI) ExportAuditLogs(ctx context.Context, q adminapi.AuditLogQuery) ([]byte, error) {
	s.mu.Lock()
	fn := s.export
	s.mu.Unlock()
	if fn == nil {
		return []byte("id\n"), nil
	}
	return fn(ctx, q)
}

func (s *stubAPI) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func (s *stubAPI) lastQuery() adminapi.AuditLogQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[len(s.queries)-1]
}

func (s *stubAPI) undoCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.undos {
		if u == id {
			n++
		}
	}
	return n
}

// pendingList is one list call held open by gatedAPI until the test answers.
type pendingList struct {
	q     adminapi.AuditLogQuery
	reply chan listReply
}

type listReply struct {
	page *adminapi.AuditLogPage
	err  error
}

func (p *pendingList) respond(recs []audit.Record) {
	p.reply <- listReply{page: pageOf(recs, p.q)}
}

func (p *pendingList) fail(err error) {
	p.reply <- listReply{err: err}
}

// gatedAPI hands every list call to the test through calls.
type gatedAPI struct {
	stubAPI
	calls chan *pendingList
}

func newGatedAPI() *gatedAPI {
	g := &gatedAPI{calls: make(chan *pendingList, 8)}
	g.list = func(ctx context.Context, q adminapi.AuditLogQuery) (*adminapi.AuditLogPage, error) {
		p := &pendingList{q: q, reply: make(chan listReply, 1)}
		g.calls <- p
		select {
		case r := <-p.reply:
			return r.page, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g
}

func (g *gatedAPI) next(t *testing.T) *pendingList {
	t.Helper()
	select {
	case p := <-g.calls:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a list call")
		return nil
	}
}

// async runs fn in a goroutine and returns its result channel.
func async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

func wait(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for operation")
		return nil
	}
}

// openView opens a view over api and answers its first load with recs.
func openView(t *testing.T, api *gatedAPI, f Filter, recs []audit.Record) *View {
	t.Helper()
	v := New(api, f, testOptions())
	t.Cleanup(func() { _ = v.Close() })
	done := async(func() error { return v.Open(context.Background()) })
	api.next(t).respond(recs)
	if err := wait(t, done); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return v
}
