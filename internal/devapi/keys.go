package devapi

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schoolbooks/admin-console/internal/audit"
)

// RegistrationKey is a join code for a school.
type RegistrationKey struct {
	ID        audit.ID  `json:"id"`
	Key       string    `json:"key"`
	SchoolID  audit.ID  `json:"schoolId"`
	Role      string    `json:"role"`
	MaxUses   int       `json:"maxUses"`
	UsedCount int       `json:"usedCount"`
	StudentID *audit.ID `json:"studentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

var validRoles = []string{"student", "teacher", "admin"}

// ListKeys returns the keys of schoolID, or every key when it is empty.
func (s *Store) ListKeys(schoolID string) []RegistrationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RegistrationKey, 0, len(s.keys))
	for _, k := range s.keys {
		if schoolID == "" || string(k.SchoolID) == schoolID {
			out = append(out, k)
		}
	}
	return out
}

// CreateKey adds a key with a random code. maxUses must be at least 1.
func (s *Store) CreateKey(schoolID, role string, maxUses int) (RegistrationKey, error) {
	if schoolID == "" {
		return RegistrationKey{}, fmt.Errorf("%w: schoolId is required", ErrInvalidInput)
	}
	role = strings.ToLower(role)
	if !slices.Contains(validRoles, role) {
		return RegistrationKey{}, fmt.Errorf("%w: role must be one of %s", ErrInvalidInput, strings.Join(validRoles, ", "))
	}
	if maxUses < 1 {
		return RegistrationKey{}, fmt.Errorf("%w: maxUses must be at least 1", ErrInvalidInput)
	}
	code, err := newKeyCode()
	if err != nil {
		return RegistrationKey{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := RegistrationKey{
		ID:        audit.ID(uuid.New().String()),
		Key:       code,
		SchoolID:  audit.ID(schoolID),
		Role:      role,
		MaxUses:   maxUses,
		CreatedAt: s.now(),
	}
	s.keys = append(s.keys, k)
	return k, nil
}

// DeleteKey removes a key and returns it as it was.
func (s *Store) DeleteKey(id string) (RegistrationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.keyIndexLocked(audit.ID(id))
	if i < 0 {
		return RegistrationKey{}, ErrNotFound
	}
	k := s.keys[i]
	s.keys = slices.Delete(s.keys, i, i+1)
	return k, nil
}

// AssignStudent binds a key to a student. Each assignment uses the key once.
func (s *Store) AssignStudent(id, studentID string) (RegistrationKey, error) {
	if studentID == "" {
		return RegistrationKey{}, fmt.Errorf("%w: studentId is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.keyIndexLocked(audit.ID(id))
	if i < 0 {
		return RegistrationKey{}, ErrNotFound
	}
	k := &s.keys[i]
	if k.UsedCount >= k.MaxUses {
		return RegistrationKey{}, fmt.Errorf("%w: key has no uses left", ErrInvalidInput)
	}
	sid := audit.ID(studentID)
	k.StudentID = &sid
	k.UsedCount++
	return *k, nil
}

func (s *Store) keyIndexLocked(id audit.ID) int {
	return slices.IndexFunc(s.keys, func(k RegistrationKey) bool { return k.ID == id })
}

func newKeyCode() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
	return code[:4] + "-" + code[4:8] + "-" + code[8:12], nil
}
