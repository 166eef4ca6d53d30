package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ID is a positive integer identifier that clients may send either as a
// JSON number or as a numeric string. Zero means absent.
type ID int64

// UnmarshalJSON accepts 42, "42", 0, "" and null. Zero, empty and null all
// decode as absent; negative and non-numeric values are rejected.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return ErrInvalidID
		}
		if strings.TrimSpace(raw) == "" {
			*id = 0
			return nil
		}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v < 0 {
		return ErrInvalidID
	}
	*id = ID(v)
	return nil
}

// Int64 returns the identifier as a plain integer.
func (id ID) Int64() int64 { return int64(id) }

// ParseID parses a path segment or field into a positive identifier.
func ParseID(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrInvalidID
	}
	return v, nil
}

// ParsePriority validates a client-supplied priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", ErrInvalidPriority
	}
	return p, nil
}

// ParseFilter maps a client-supplied filter name onto a known filter.
// Unknown values and "all" select the unfiltered listing.
func ParseFilter(s string) ConversationFilter {
	f := ConversationFilter(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FilterUnread, FilterToday, FilterYesterday, FilterHigh, FilterMedium, FilterLow:
		return f
	}
	return FilterAll
}
