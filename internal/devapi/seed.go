package devapi

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/schoolbooks/admin-console/internal/audit"
)

type seedTemplate struct {
	action     audit.Action
	entityType audit.EntityType
	describe   string
	changes    func(r *rand.Rand) []audit.FieldChange
	system     bool
}

var seedTemplates = []seedTemplate{
	{action: "created", entityType: audit.EntityBook, describe: "Created book %q"},
	{action: "updated", entityType: audit.EntityBook, describe: "Updated book %q", changes: titleChange},
	{action: "deleted", entityType: audit.EntityBook, describe: "Deleted book %q"},
	{action: "updated", entityType: audit.EntityChapter, describe: "Renamed chapter in %q", changes: titleChange},
	{action: "deleted", entityType: audit.EntityBlock, describe: "Removed a block from %q"},
	{action: "created", entityType: audit.EntityRegistrationKey, describe: "Created registration key for %q"},
	{action: "updated", entityType: audit.EntitySchool, describe: "Changed settings of %q", changes: settingsChange},
	{action: audit.ActionDelete, entityType: audit.EntityBook, describe: "Deleted book %q"},
	{action: audit.ActionUpdate, entityType: audit.EntityUser, describe: "Updated profile of %q", changes: roleChange},
	{action: audit.ActionLogin, entityType: audit.EntityUser, describe: "Signed in from %q"},
	{action: audit.ActionAccess, entityType: "report", describe: "Viewed report %q"},
	{action: "synced", entityType: audit.EntitySchool, describe: "Nightly roster sync for %q", system: true},
}

var seedNames = []string{
	"Algebra I", "World History", "Biology Basics", "Chemistry Lab", "Poetry & Prose",
	"Geometry, Revised", "Intro to Physics", "Lakeside Middle School", "Northgate High",
}

var seedUsers = []string{"u-100", "u-101", "u-102", "u-200", "u-201"}

var seedAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/124.0",
	"admin-console/dev",
}

func titleChange(r *rand.Rand) []audit.FieldChange {
	from := seedNames[r.IntN(len(seedNames))]
	return []audit.FieldChange{
		{Field: "title", OldValue: audit.ValueOf(from), NewValue: audit.ValueOf(from + " (2nd ed.)")},
		{Field: "published", OldValue: audit.ValueOf(false), NewValue: audit.ValueOf(true)},
	}
}

func settingsChange(r *rand.Rand) []audit.FieldChange {
	return []audit.FieldChange{
		{Field: "maxStudents", OldValue: audit.ValueOf(200 + r.IntN(50)), NewValue: audit.ValueOf(300)},
		{Field: "timezone", OldValue: audit.ValueOf(nil), NewValue: audit.ValueOf("Europe/Berlin")},
	}
}

func roleChange(*rand.Rand) []audit.FieldChange {
	return []audit.FieldChange{
		{Field: "role", OldValue: audit.ValueOf("student"), NewValue: audit.ValueOf("teacher")},
	}
}

// Seed fills s with n synthetic audit records spread over the 30 days before
// now, plus two books and a registration key. The same seed value always
// produces the same records.
func Seed(s *Store, n int, seed uint64, now time.Time) error {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	span := 30 * 24 * time.Hour

	recs := make([]audit.Record, 0, n)
	for i := range n {
		t := seedTemplates[r.IntN(len(seedTemplates))]
		name := seedNames[r.IntN(len(seedNames))]
		entity := audit.ID(fmt.Sprintf("%s-%d", t.entityType, 1+r.IntN(40)))

		rec := audit.Record{
			ID:          audit.ID(fmt.Sprintf("%d", i+1)),
			Action:      t.action,
			EntityType:  t.entityType,
			EntityID:    &entity,
			Description: fmt.Sprintf(t.describe, name),
			IPAddress:   fmt.Sprintf("10.0.%d.%d", r.IntN(4), 2+r.IntN(250)),
			UserAgent:   seedAgents[r.IntN(len(seedAgents))],
			CreatedAt:   now.Add(-span / time.Duration(n+1) * time.Duration(n-i)).UTC().Truncate(time.Second),
		}
		if !t.system {
			uid := audit.ID(seedUsers[r.IntN(len(seedUsers))])
			rec.UserID = &uid
		} else {
			rec.IPAddress = ""
			rec.UserAgent = ""
		}
		if t.changes != nil {
			rec.ExtraData = audit.ValueOf(map[string]any{"changes": t.changes(r)})
		}
		recs = append(recs, rec)
	}
	s.Add(recs...)

	s.PutBook(Book{
		ID: "book-1", Title: "Algebra I", SchoolID: "school-1",
		Blocks: []Block{
			{ID: "blk-1", ChapterID: "ch-1", Content: "A variable stands for an unknown number."},
			{ID: "blk-2", ChapterID: "ch-1", Content: "Solve for the Variable on both sides."},
		},
	})
	s.PutBook(Book{
		ID: "book-2", Title: "World History", SchoolID: "school-1",
		Blocks: []Block{{ID: "blk-3", ChapterID: "ch-7", Content: "The printing press spread ideas quickly."}},
	})
	if _, err := s.CreateKey("school-1", "student", 30); err != nil {
		return fmt.Errorf("seed registration key: %w", err)
	}
	return nil
}
