package sqlutil

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"showcatalog/internal/schema"
)

// Driver names as registered with database/sql.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// Dialect covers the few places where the supported databases disagree:
// quoting, placeholders, case-insensitive matching, list containment and DDL.
// Column arguments are always already quoted.
type Dialect interface {
	Driver() string
	Quote(name string) string
	Placeholder() sq.PlaceholderFormat
	// PatternMatch is a case-insensitive LIKE against the column's text form.
	PatternMatch(column, pattern string) sq.Sqlizer
	// ListContains tests whether a JSON string array column holds element.
	ListContains(column, element string) sq.Sqlizer
	// LockSuffix is appended to key lookups inside a write transaction.
	LockSuffix() string
	ColumnType(col schema.Column) string
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverMySQL, "":
		return MySQL{}, nil
	case DriverPostgres, "postgres":
		return Postgres{}, nil
	case DriverSQLite, "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// MySQL targets MySQL and TiDB. Multi-text columns are JSON.
type MySQL struct{}

func (MySQL) Driver() string { return DriverMySQL }
func (MySQL) Quote(name string) string { return QuoteIdentifier(name) }
func (MySQL) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (MySQL) LockSuffix() string { return "FOR UPDATE" }

func (MySQL) PatternMatch(column, pattern string) sq.Sqlizer {
	// TiDB defaults to binary collations, so fold case on both sides.
	return sq.Expr(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", column), pattern)
}

func (MySQL) ListContains(column, element string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("JSON_CONTAINS(%s, JSON_QUOTE(?))", column), element)
}

func (MySQL) ColumnType(col schema.Column) string {
	switch col.Kind {
	case schema.KindInteger:
		return "BIGINT"
	case schema.KindDate:
		return "DATE"
	case schema.KindMultiText:
		return "JSON"
	}
	if col.IsKey {
		return "VARCHAR(64)"
	}
	return "TEXT"
}

// Postgres targets PostgreSQL through pgx. Multi-text columns are JSONB.
type Postgres struct{}

func (Postgres) Driver() string { return DriverPostgres }
func (Postgres) Quote(name string) string { return QuoteDoubleIdentifier(name) }
func (Postgres) Placeholder() sq.PlaceholderFormat { return sq.Dollar }
func (Postgres) LockSuffix() string { return "FOR UPDATE" }

func (Postgres) PatternMatch(column, pattern string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("CAST(%s AS TEXT) ILIKE ?", column), pattern)
}

func (Postgres) ListContains(column, element string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("%s @> jsonb_build_array(CAST(? AS TEXT))", column), element)
}

func (Postgres) ColumnType(col schema.Column) string {
	switch col.Kind {
	case schema.KindInteger:
		return "BIGINT"
	case schema.KindDate:
		return "DATE"
	case schema.KindMultiText:
		return "JSONB"
	}
	if col.IsKey {
		return "VARCHAR(64)"
	}
	return "TEXT"
}

// SQLite is used for local development. Multi-text columns are JSON text.
type SQLite struct{}

func (SQLite) Driver() string { return DriverSQLite }
func (SQLite) Quote(name string) string { return QuoteIdentifier(name) }
func (SQLite) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (SQLite) LockSuffix() string { return "" }

func (SQLite) PatternMatch(column, pattern string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", column), pattern)
}

func (SQLite) ListContains(column, element string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value = ?)", column), element)
}

func (SQLite) ColumnType(col schema.Column) string {
	switch col.Kind {
	case schema.KindInteger:
		return "INTEGER"
	case schema.KindDate:
		return "DATE"
	}
	return "TEXT"
}
