package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one catalog row keyed by column name. Values are typed by kind:
// string, int64, time.Time (UTC midnight) or []string. A nil value is an
// explicit NULL; a missing key means no value was provided.
type Record map[string]any

// Clone returns a copy of the record. List values are copied too.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if list, ok := v.([]string); ok && list != nil {
			dup := make([]string, len(list))
			copy(dup, list)
			v = dup
		}
		out[k] = v
	}
	return out
}

// CoerceError reports a value that cannot be converted to its column's kind.
type CoerceError struct {
	Column string
	Value  any
	Err    error
}

func (e *CoerceError) Error() string {
	return fmt.Sprintf("column %s: cannot use %v: %v", e.Column, e.Value, e.Err)
}

func (e *CoerceError) Unwrap() error {
	return e.Err
}

// Coerce converts a decoded JSON payload value into the column's typed form.
func (c Column) Coerce(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := c.coerce(raw)
	if err != nil {
		return nil, &CoerceError{Column: c.Name, Value: raw, Err: err}
	}
	return value, nil
}

func (c Column) coerce(raw any) (any, error) {
	switch c.Kind {
	case KindText:
		switch v := raw.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case int:
			return strconv.Itoa(v), nil
		}
	case KindInteger:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("not an integer")
			}
			return int64(v), nil
		case json.Number:
			return v.Int64()
		case string:
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
	case KindDate:
		switch v := raw.(type) {
		case string:
			return ParseDate(v)
		case time.Time:
			return truncateDate(v), nil
		}
	case KindMultiText:
		switch v := raw.(type) {
		case []string:
			out := make([]string, len(v))
			copy(out, v)
			return out, nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("list element %v is not a string", item)
				}
				out = append(out, s)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("unsupported value type %T for %s column", raw, c.Kind)
}

// ParseDate parses a YYYY-MM-DD date into UTC midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Encode converts a typed value into a database driver argument.
func (c Column) Encode(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch c.Kind {
	case KindMultiText:
		list, ok := value.([]string)
		if !ok {
			return nil, fmt.Errorf("column %s: expected []string, got %T", c.Name, value)
		}
		if list == nil {
			list = []string{}
		}
		encoded, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return string(encoded), nil
	case KindDate:
		t, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("column %s: expected time.Time, got %T", c.Name, value)
		}
		return t.Format(DateLayout), nil
	}
	return value, nil
}

// FromDB converts a scanned driver value into the column's typed form.
func (c Column) FromDB(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch c.Kind {
	case KindText:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		}
	case KindInteger:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case []byte:
			return strconv.ParseInt(string(v), 10, 64)
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
	case KindDate:
		switch v := value.(type) {
		case time.Time:
			return truncateDate(v), nil
		case []byte:
			return parseStoredDate(string(v))
		case string:
			return parseStoredDate(v)
		}
	case KindMultiText:
		var raw []byte
		switch v := value.(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			return nil, fmt.Errorf("column %s: unexpected stored type %T", c.Name, value)
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("column %s: invalid stored list: %w", c.Name, err)
		}
		if list == nil {
			return nil, nil
		}
		return list, nil
	}
	return nil, fmt.Errorf("column %s: unexpected stored type %T", c.Name, value)
}

func parseStoredDate(value string) (time.Time, error) {
	if len(value) > len(DateLayout) {
		value = value[:len(DateLayout)]
	}
	return ParseDate(value)
}

// Export renders a record with JSON-friendly values: dates become
// YYYY-MM-DD strings and every registry column is present.
func (r *Registry) Export(rec Record) map[string]any {
	out := make(map[string]any, len(r.columns))
	for _, col := range r.columns {
		value := rec[col.Name]
		if t, ok := value.(time.Time); ok {
			value = t.Format(DateLayout)
		}
		out[col.Name] = value
	}
	return out
}
