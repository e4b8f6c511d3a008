// Package domain holds the records mirrored from the remote store and the denormalized
// view items the cache serves to the UI.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DraftID is the placeholder identifier of an optimistic row that the remote store
// has not confirmed yet.
const DraftID int64 = -1

// IsDraftID reports whether id belongs to an unconfirmed optimistic row.
func IsDraftID(id int64) bool {
	return id < 0
}

// StringList is a list of strings stored as a JSON array. It also accepts the array
// encoded as a JSON string, which is how SQL views hand back aggregated columns.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*l = nil
			return nil
		}
		data = []byte(inner)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	// json_group_array over an empty join yields [null].
	cleaned := out[:0]
	for _, s := range out {
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	*l = cleaned
	return nil
}

// Contains reports whether v is in the list.
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// Flag is a boolean that also decodes from the 0/1 integers SQLite returns for
// BOOLEAN columns.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("decode flag: %s", data)
	}
	return nil
}
