package devapi

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/schoolbooks/admin-console/internal/audit"
)

// Book is a text book made of blocks.
type Book struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	SchoolID string  `json:"schoolId"`
	Blocks   []Block `json:"blocks"`
}

// Block is one block of book text.
type Block struct {
	ID        string `json:"id"`
	ChapterID string `json:"chapterId"`
	Content   string `json:"content"`
}

// PutBook stores a copy of b, replacing any book with the same id.
func (s *Store) PutBook(b Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := b
	cp.Blocks = append([]Block(nil), b.Blocks...)
	s.books[b.ID] = &cp
}

// GetBook returns a copy of the book.
func (s *Store) GetBook(id string) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	cp := *b
	cp.Blocks = append([]Block(nil), b.Blocks...)
	return cp, nil
}

// ReplaceText replaces every occurrence of find in the book's blocks. It
// returns the number of occurrences replaced and one change per modified
// block, field "block:<id>", in block order.
func (s *Store) ReplaceText(bookID, find, replace string, caseSensitive bool) (int, []audit.FieldChange, error) {
	if find == "" {
		return 0, nil, fmt.Errorf("%w: find text is required", ErrInvalidInput)
	}
	pattern := regexp.QuoteMeta(find)
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re := regexp.MustCompile(pattern)

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		return 0, nil, ErrNotFound
	}

	count := 0
	var changes []audit.FieldChange
	for i := range b.Blocks {
		old := b.Blocks[i].Content
		n := len(re.FindAllStringIndex(old, -1))
		if n == 0 {
			continue
		}
		updated := re.ReplaceAllLiteralString(old, replace)
		b.Blocks[i].Content = updated
		count += n
		changes = append(changes, audit.FieldChange{
			Field:    "block:" + b.Blocks[i].ID,
			OldValue: audit.ValueOf(old),
			NewValue: audit.ValueOf(updated),
		})
	}
	return count, changes, nil
}

// Contains reports whether any block of the book contains text.
func (b Book) Contains(text string) bool {
	for _, bl := range b.Blocks {
		if strings.Contains(bl.Content, text) {
			return true
		}
	}
	return false
}
