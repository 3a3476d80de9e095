// Package devapi is an in-memory implementation of the admin API the console
// talks to. It serves the audit-log, undo, export, registration-key and
// book-replace endpoints over gin, and backs the dev-api binary and the
// end-to-end tests of the console.
package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schoolbooks/admin-console/internal/audit"
)

// Store errors, mapped to HTTP statuses by the handlers.
var (
	ErrNotFound      = errors.New("not found")
	ErrNotUndoable   = errors.New("this change cannot be undone")
	ErrAlreadyUndone = errors.New("this change has already been undone")
	ErrInvalidInput  = errors.New("invalid input")
)

// ActionUndo is the action of records written when a change is undone.
const ActionUndo audit.Action = "undo"

// AuditFilters selects audit records. Empty fields match everything; Action
// and EntityType compare case-insensitively, Search is a case-insensitive
// substring match over description, action and entity type.
type AuditFilters struct {
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	Search     string
	StartDate  time.Time
	EndDate    time.Time
}

// Store holds audit records, registration keys and books. It is safe for
// concurrent use.
type Store struct {
	mu     sync.RWMutex
	logs   []audit.Record
	undone map[audit.ID]audit.ID
	keys   []RegistrationKey
	books  map[string]*Book
	now    func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		undone: make(map[audit.ID]audit.ID),
		books:  make(map[string]*Book),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordAudit stores rec, assigning an ID and CreatedAt when missing. It
// satisfies middleware.Recorder.
func (s *Store) RecordAudit(_ context.Context, rec audit.Record) (audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(rec), nil
}

// Add stores records as given, except that empty IDs and creation times are
// filled in.
func (s *Store) Add(recs ...audit.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.appendLocked(r)
	}
}

func (s *Store) appendLocked(rec audit.Record) audit.Record {
	if rec.ID == "" {
		rec.ID = audit.ID(uuid.New().String())
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.logs = append(s.logs, rec)
	return rec
}

// Get returns the record with the given id.
func (s *Store) Get(id audit.ID) (audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.logs[i], nil
	}
	return audit.Record{}, ErrNotFound
}

func (s *Store) indexLocked(id audit.ID) int {
	for i := range s.logs {
		if s.logs[i].ID == id {
			return i
		}
	}
	return -1
}

// ListAuditLogs returns one page of matching records, newest first, and the
// number of matching records.
func (s *Store) ListAuditLogs(f AuditFilters, limit, offset int) ([]audit.Record, int) {
	all := s.Matching(f)
	total := len(all)
	if offset >= total {
		return []audit.Record{}, total
	}
	end := min(offset+limit, total)
	return all[offset:end], total
}

// Matching returns every record that matches f, newest first. Records
// created at the same instant keep reverse insertion order.
func (s *Store) Matching(f AuditFilters) []audit.Record {
	s.mu.RLock()
	out := make([]audit.Record, 0, len(s.logs))
	for i := len(s.logs) - 1; i >= 0; i-- {
		if f.match(s.logs[i]) {
			out = append(out, s.logs[i])
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b audit.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (f AuditFilters) match(r audit.Record) bool {
	if f.UserID != "" && r.Actor() != f.UserID {
		return false
	}
	if f.Action != "" && !strings.EqualFold(string(r.Action), f.Action) {
		return false
	}
	if f.EntityType != "" && !strings.EqualFold(string(r.EntityType), f.EntityType) {
		return false
	}
	if f.EntityID != "" && r.Entity() != f.EntityID {
		return false
	}
	if !f.StartDate.IsZero() && r.CreatedAt.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && r.CreatedAt.After(f.EndDate) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hay := strings.ToLower(r.Description + "\n" + string(r.Action) + "\n" + string(r.EntityType))
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}

// Undoable reports whether the store can reverse rec. Unlike the console's
// display heuristic this requires an exact create/update/delete action (in
// base or past form) on a content entity.
func Undoable(rec audit.Record) bool {
	action := strings.TrimSuffix(strings.ToLower(string(rec.Action)), "d")
	switch action {
	case "create", "update", "delete":
	default:
		return false
	}
	switch audit.EntityType(strings.ToLower(string(rec.EntityType))) {
	case audit.EntityBook, audit.EntityChapter, audit.EntityBlock, audit.EntityRegistrationKey, audit.EntitySchool:
		return true
	}
	return false
}

// Undo reverses the change recorded by id where the store holds enough
// state to do so, marks the record undone and returns the undo record the
// caller should write to the log.
func (s *Store) Undo(id audit.ID) (audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return audit.Record{}, ErrNotFound
	}
	rec := s.logs[i]
	if !Undoable(rec) {
		return audit.Record{}, ErrNotUndoable
	}
	if _, done := s.undone[id]; done {
		return audit.Record{}, ErrAlreadyUndone
	}
	if err := s.revertLocked(rec); err != nil {
		return audit.Record{}, err
	}
	undoID := audit.ID(uuid.New().String())
	s.undone[id] = undoID

	return audit.Record{
		ID:          undoID,
		Action:      ActionUndo,
		EntityType:  rec.EntityType,
		EntityID:    rec.EntityID,
		Description: "Undid: " + rec.Description,
		ExtraData:   audit.ValueOf(map[string]any{"undoneLogId": string(rec.ID)}),
	}, nil
}

// UndoneBy returns the id of the undo record that reversed id.
func (s *Store) UndoneBy(id audit.ID) (audit.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.undone[id]
	return u, ok
}

// revertLocked applies the compensating change for records this store
// produced itself. Records without restorable state (seeded history) are
// only marked undone.
func (s *Store) revertLocked(rec audit.Record) error {
	action := strings.TrimSuffix(strings.ToLower(string(rec.Action)), "d")
	switch audit.EntityType(strings.ToLower(string(rec.EntityType))) {
	case audit.EntityRegistrationKey:
		switch action {
		case "create":
			s.keys = slices.DeleteFunc(s.keys, func(k RegistrationKey) bool { return string(k.ID) == rec.Entity() })
		case "delete":
			var payload struct {
				Snapshot *RegistrationKey `json:"snapshot"`
			}
			if err := json.Unmarshal(rec.ExtraData.Raw(), &payload); err == nil && payload.Snapshot != nil {
				if s.keyIndexLocked(payload.Snapshot.ID) < 0 {
					s.keys = append(s.keys, *payload.Snapshot)
				}
			}
		}
	case audit.EntityBook:
		book, ok := s.books[rec.Entity()]
		if !ok || action != "update" {
			return nil
		}
		changes, ok := rec.Changes()
		if !ok {
			return nil
		}
		for _, ch := range changes {
			blockID, found := strings.CutPrefix(ch.Field, "block:")
			if !found {
				continue
			}
			var old string
			if err := json.Unmarshal(ch.OldValue.Raw(), &old); err != nil {
				return fmt.Errorf("restore block %s: %w", blockID, err)
			}
			for j := range book.Blocks {
				if book.Blocks[j].ID == blockID {
					book.Blocks[j].Content = old
				}
			}
		}
	}
	return nil
}
