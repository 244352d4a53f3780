// Package schema holds the column registry that every query, aggregation
// and upsert is validated against.
package schema

import (
	"fmt"
	"strings"
)

// Kind identifies how a column's values are typed and filtered.
type Kind string

const (
	KindText      Kind = "text"
	KindInteger   Kind = "integer"
	KindDate      Kind = "date"
	KindMultiText Kind = "multi-text"
)

// DateLayout is the only accepted wire format for date columns.
const DateLayout = "2006-01-02"

// Column describes a single column of the catalog table.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
	IsKey    bool
}

// IsMulti reports whether the column stores an ordered list of strings.
func (c Column) IsMulti() bool {
	return c.Kind == KindMultiText
}

// Registry is an immutable, ordered set of columns with exactly one key.
type Registry struct {
	columns []Column
	index   map[string]int
	key     int
}

// NewRegistry validates the column list and builds a registry.
func NewRegistry(columns ...Column) (*Registry, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("registry requires at least one column")
	}

	reg := &Registry{
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
		key:     -1,
	}
	copy(reg.columns, columns)

	for i, col := range reg.columns {
		if col.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if Normalize(col.Name) != col.Name {
			return nil, fmt.Errorf("column %q is not in normalized form", col.Name)
		}
		switch col.Kind {
		case KindText, KindInteger, KindDate, KindMultiText:
		default:
			return nil, fmt.Errorf("column %q has unknown kind %q", col.Name, col.Kind)
		}
		if _, dup := reg.index[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		reg.index[col.Name] = i

		if col.IsKey {
			if reg.key >= 0 {
				return nil, fmt.Errorf("columns %q and %q are both marked as key", reg.columns[reg.key].Name, col.Name)
			}
			if col.Nullable {
				return nil, fmt.Errorf("key column %q cannot be nullable", col.Name)
			}
			reg.key = i
		}
	}

	if reg.key < 0 {
		return nil, fmt.Errorf("registry has no key column")
	}
	return reg, nil
}

// MustRegistry is NewRegistry for static column lists.
func MustRegistry(columns ...Column) *Registry {
	reg, err := NewRegistry(columns...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Shows returns the registry for the shows catalog table.
func Shows() *Registry {
	return MustRegistry(
		Column{Name: "show_id", Kind: KindText, IsKey: true},
		Column{Name: "type", Kind: KindText},
		Column{Name: "title", Kind: KindText},
		Column{Name: "director", Kind: KindMultiText, Nullable: true},
		Column{Name: "cast", Kind: KindMultiText, Nullable: true},
		Column{Name: "country", Kind: KindMultiText, Nullable: true},
		Column{Name: "date_added", Kind: KindDate},
		Column{Name: "release_year", Kind: KindInteger},
		Column{Name: "rating", Kind: KindText},
		Column{Name: "duration", Kind: KindText},
		Column{Name: "listed_in", Kind: KindMultiText, Nullable: true},
		Column{Name: "description", Kind: KindText},
	)
}

// Columns returns the columns in declaration order.
func (r *Registry) Columns() []Column {
	out := make([]Column, len(r.columns))
	copy(out, r.columns)
	return out
}

// Names returns the column names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.columns))
	for i, col := range r.columns {
		names[i] = col.Name
	}
	return names
}

// Lookup finds a column by its exact registry name.
func (r *Registry) Lookup(name string) (Column, bool) {
	i, ok := r.index[name]
	if !ok {
		return Column{}, false
	}
	return r.columns[i], true
}

// Resolve normalizes a caller-supplied name before looking it up.
func (r *Registry) Resolve(raw string) (Column, bool) {
	return r.Lookup(Normalize(raw))
}

// Position returns the declaration index of a column, or -1.
func (r *Registry) Position(name string) int {
	i, ok := r.index[name]
	if !ok {
		return -1
	}
	return i
}

// Key returns the natural key column.
func (r *Registry) Key() Column {
	return r.columns[r.key]
}

// Required returns the non-nullable columns in declaration order.
func (r *Registry) Required() []Column {
	var out []Column
	for _, col := range r.columns {
		if !col.Nullable {
			out = append(out, col)
		}
	}
	return out
}

// Normalize lower-cases a name and joins whitespace-separated words with
// underscores, so "Release  Year" becomes "release_year".
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}
