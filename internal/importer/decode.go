package importer

import (
	"fmt"
	"strings"
	"time"

	"showcatalog/internal/schema"
)

// csvDateLayout is how the titles export writes date_added.
const csvDateLayout = "January 2, 2006"

// RowDecoder maps CSV rows onto upsert payloads using the header row.
// Header names are normalized, so "Release Year" binds to release_year.
// Columns the registry does not know are ignored.
type RowDecoder struct {
	columns []*schema.Column
}

// NewRowDecoder binds header positions to registry columns. The key column
// must be present.
func NewRowDecoder(registry *schema.Registry, header []string) (*RowDecoder, error) {
	d := &RowDecoder{columns: make([]*schema.Column, len(header))}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		col, ok := registry.Resolve(strings.TrimPrefix(name, "\ufeff"))
		if !ok {
			continue
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("column %q appears more than once in header", col.Name)
		}
		seen[col.Name] = true
		d.columns[i] = &col
	}
	if key := registry.Key().Name; !seen[key] {
		return nil, fmt.Errorf("header has no %q column", key)
	}
	return d, nil
}

// Decode turns one row into a payload. Multi-valued cells are split on
// commas into trimmed lists; a blank multi-valued cell is an empty list and
// a blank scalar cell is left out.
func (d *RowDecoder) Decode(row []string) map[string]any {
	payload := make(map[string]any, len(row))
	for i, cell := range row {
		if i >= len(d.columns) || d.columns[i] == nil {
			continue
		}
		col := d.columns[i]
		value := strings.TrimSpace(cell)
		switch {
		case col.IsMulti():
			payload[col.Name] = splitList(value)
		case value == "":
		case col.Kind == schema.KindDate:
			payload[col.Name] = normalizeDate(value)
		default:
			payload[col.Name] = value
		}
	}
	return payload
}

func splitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalizeDate rewrites "September 25, 2021" as 2021-09-25. Values in any
// other format pass through and fail later as parse errors.
func normalizeDate(value string) string {
	if t, err := time.Parse(csvDateLayout, value); err == nil {
		return t.Format(schema.DateLayout)
	}
	return value
}
