// Package sqlutil provides identifier quoting and per-driver SQL fragments.
package sqlutil

import "strings"

// QuoteIdentifier wraps a table or column name in backticks, doubling any
// backtick inside it. MySQL, TiDB and SQLite all accept this form.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteDoubleIdentifier is the ANSI form used by PostgreSQL.
func QuoteDoubleIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName quotes each dot-separated part of a possibly
// schema-qualified table name.
func QualifiedName(name string, quote func(string) string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quote(part)
	}
	return strings.Join(parts, ".")
}
