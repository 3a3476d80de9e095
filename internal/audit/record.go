// Package audit models the audit-log records served by the admin API and the
// display rules the console applies to them.
package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Action is the kind of operation an audit record describes. The set is open:
// values the backend sends that are not listed here pass through unchanged.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
	ActionAccess Action = "access"
)

// KnownActions lists the actions the console offers as filter choices.
var KnownActions = []Action{ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout, ActionAccess}

// Label returns the display label, or the raw text for unknown actions.
func (a Action) Label() string {
	switch Action(strings.ToLower(string(a))) {
	case ActionCreate:
		return "Created"
	case ActionUpdate:
		return "Updated"
	case ActionDelete:
		return "Deleted"
	case ActionLogin:
		return "Logged in"
	case ActionLogout:
		return "Logged out"
	case ActionAccess:
		return "Accessed"
	default:
		return string(a)
	}
}

// EntityType is the kind of entity an audit record refers to. Open like Action.
type EntityType string

const (
	EntityBook            EntityType = "book"
	EntityChapter         EntityType = "chapter"
	EntityBlock           EntityType = "block"
	EntityUser            EntityType = "user"
	EntitySchool          EntityType = "school"
	EntityRegistrationKey EntityType = "registration_key"
)

// KnownEntityTypes lists the entity types the console offers as filter choices.
var KnownEntityTypes = []EntityType{EntityBook, EntityChapter, EntityBlock, EntityUser, EntitySchool, EntityRegistrationKey}

// Label returns the display label, or the raw text for unknown entity types.
func (e EntityType) Label() string {
	switch EntityType(strings.ToLower(string(e))) {
	case EntityBook:
		return "Book"
	case EntityChapter:
		return "Chapter"
	case EntityBlock:
		return "Block"
	case EntityUser:
		return "User"
	case EntitySchool:
		return "School"
	case EntityRegistrationKey:
		return "Registration key"
	default:
		return string(e)
	}
}

// ID is an opaque identifier. The backend may send it as a JSON string or a
// number; both decode to the same text.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// FieldChange is one entry of extraData.changes.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue Value  `json:"oldValue"`
	NewValue Value  `json:"newValue"`
}

// Record is one audit-log entry as returned by the admin API.
type Record struct {
	ID          ID         `json:"id"`
	UserID      *ID        `json:"userId"`
	Action      Action     `json:"action"`
	EntityType  EntityType `json:"entityType"`
	EntityID    *ID        `json:"entityId"`
	Description string     `json:"description"`
	ExtraData   Value      `json:"extraData"`
	IPAddress   string     `json:"ipAddress,omitempty"`
	UserAgent   string     `json:"userAgent,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Actor returns the user id, or "system" for system-initiated records.
func (r Record) Actor() string {
	if r.UserID == nil || *r.UserID == "" {
		return "system"
	}
	return string(*r.UserID)
}

// Entity returns the entity id, or "" when the record has none.
func (r Record) Entity() string {
	if r.EntityID == nil {
		return ""
	}
	return string(*r.EntityID)
}

// UndoEligible reports whether the console offers undo for this record.
func (r Record) UndoEligible() bool {
	return ClassifyUndo(string(r.Action), string(r.EntityType))
}

// Changes returns extraData.changes in the order the backend sent them.
// ok is false when extraData is absent, is not an object, or carries no
// well-formed non-empty changes list.
func (r Record) Changes() (changes []FieldChange, ok bool) {
	if r.ExtraData.Kind() != KindMap {
		return nil, false
	}
	var payload struct {
		Changes json.RawMessage `json:"changes"`
	}
	if err := json.Unmarshal(r.ExtraData.raw, &payload); err != nil {
		return nil, false
	}
	if (Value{raw: payload.Changes}).Kind() != KindList {
		return nil, false
	}
	if err := json.Unmarshal(payload.Changes, &changes); err != nil {
		return nil, false
	}
	if len(changes) == 0 {
		return nil, false
	}
	return changes, true
}
