package audit

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Kind identifies the JSON type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// Value is an opaque JSON value carried for display only. The raw bytes are
// kept so rendering never reorders object keys or reformats numbers.
type Value struct {
	raw json.RawMessage
}

// ValueOf marshals v into a Value. It panics only if v cannot be marshalled,
// which for the plain Go values used with it (strings, numbers, maps, slices) cannot happen.
func ValueOf(v any) Value {
	b, err := json.Marshal(v)
	if err != nil {
		panic("audit: ValueOf: " + err.Error())
	}
	return Value{raw: b}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	v.raw = append(v.raw[:0], b...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(v.raw)) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// Raw returns the JSON text as received.
func (v Value) Raw() json.RawMessage {
	return v.raw
}

// IsNull reports whether the value is absent or JSON null.
func (v Value) IsNull() bool {
	return v.Kind() == KindNull
}

// Kind returns the JSON type of the value.
func (v Value) Kind() Kind {
	t := bytes.TrimSpace(v.raw)
	if len(t) == 0 {
		return KindNull
	}
	switch t[0] {
	case 'n':
		return KindNull
	case 't', 'f':
		return KindBool
	case '"':
		return KindString
	case '[':
		return KindList
	case '{':
		return KindMap
	default:
		return KindNumber
	}
}

// String renders the value for display: strings unquoted, null as "",
// everything else as compact JSON.
func (v Value) String() string {
	t := bytes.TrimSpace(v.raw)
	switch v.Kind() {
	case KindNull:
		return ""
	case KindString:
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return string(t)
		}
		return s
	case KindList, KindMap:
		var buf bytes.Buffer
		if err := json.Compact(&buf, t); err != nil {
			return string(t)
		}
		return buf.String()
	default:
		return string(t)
	}
}

// Quote renders the value like String but quotes strings, so "5" and 5 differ.
func (v Value) Quote() string {
	if v.Kind() == KindString {
		return strconv.Quote(v.String())
	}
	return v.String()
}
