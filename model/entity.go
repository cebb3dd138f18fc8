package model

import (
	"fmt"
	"regexp"
)

// Entity is a single managed record (student, teacher, class, ...). The core
// only relies on the "id" attribute; everything else is opaque.
type Entity map[string]any

// ID returns the entity identifier. Backends that expose Mongo-style "_id"
// are accepted as well.
func (e Entity) ID() string {
	for _, key := range []string{"id", "_id"} {
		switch v := e[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// EntityIDs returns the identifiers of the given entities in order, skipping
// entities without one.
func EntityIDs(entities []Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		if id := e.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// DefaultScopePattern is the well-formedness check applied to scope ids.
const DefaultScopePattern = `^[0-9a-fA-F]{24}$`

var defaultScopeRE = regexp.MustCompile(DefaultScopePattern)

// ValidScope reports whether id is a well-formed scope identifier.
func ValidScope(id string) bool {
	return defaultScopeRE.MatchString(id)
}

// Query is the list query state of one page. Page is zero-based.
type Query struct {
	Page        int            `json:"page"`
	RowsPerPage int            `json:"rows_per_page"`
	Search      string         `json:"search"`
	Filters     map[string]any `json:"filters,omitempty"`
}

// Clone returns a deep copy of the query.
func (q Query) Clone() Query {
	c := q
	if q.Filters != nil {
		c.Filters = make(map[string]any, len(q.Filters))
		for k, v := range q.Filters {
			c.Filters[k] = v
		}
	}
	return c
}

// ActiveFilters returns the filters carrying a value. Empty strings and nil
// values mean "inactive".
func (q Query) ActiveFilters() map[string]string {
	active := make(map[string]string, len(q.Filters))
	for k, v := range q.Filters {
		if s, ok := FilterValueString(v); ok {
			active[k] = s
		}
	}
	return active
}

// FilterValueString converts a scalar filter value to its wire form. The
// second return value is false when the filter is inactive.
func FilterValueString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		return fmt.Sprintf("%t", val), true
	case float64:
		return fmt.Sprintf("%g", val), true
	case int:
		return fmt.Sprintf("%d", val), true
	default:
		s := fmt.Sprintf("%v", val)
		return s, s != ""
	}
}

// Target names a piece of page state that a mutation invalidates.
type Target string

const (
	TargetList Target = "list"
	TargetKPIs Target = "kpis"
)
