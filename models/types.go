package models

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
)

// StringList is a JSON-encoded list column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

func (l *StringList) Scan(src any) error {
	*l = nil
	return scanJSON(src, l)
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool { return slices.Contains(l, s) }

// Without returns a copy of the list with every occurrence of s removed.
func (l StringList) Without(s string) StringList {
	out := make(StringList, 0, len(l))
	for _, v := range l {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// With appends s unless already present.
func (l StringList) With(s string) StringList {
	if l.Contains(s) {
		return l
	}
	return append(l, s)
}

// Int64List is a JSON-encoded list of external ids.
type Int64List []int64

func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(l))
	return string(b), err
}

func (l *Int64List) Scan(src any) error {
	*l = nil
	return scanJSON(src, l)
}

func (l Int64List) Contains(id int64) bool { return slices.Contains(l, id) }

func (l Int64List) Without(id int64) Int64List {
	out := make(Int64List, 0, len(l))
	for _, v := range l {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (l Int64List) With(id int64) Int64List {
	if l.Contains(id) {
		return l
	}
	return append(l, id)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("models: cannot scan %T into %T", src, dst)
	}
}
