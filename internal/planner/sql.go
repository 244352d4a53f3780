package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"showcatalog/internal/schema"
	"showcatalog/internal/sqlutil"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// Target binds a registry to a physical table on a given dialect.
type Target struct {
	Table    string
	Registry *schema.Registry
	Dialect  sqlutil.Dialect
}

func (t Target) table() string {
	return sqlutil.QualifiedName(t.Table, t.Dialect.Quote)
}

func (t Target) quote(col schema.Column) string {
	return t.Dialect.Quote(col.Name)
}

func (t Target) columnList() []string {
	cols := t.Registry.Columns()
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = t.quote(col)
	}
	return out
}

// PlanSelect renders a query plan. Rows are always ordered by the key as the
// last sort term so pages are stable.
func PlanSelect(target Target, plan QueryPlan) (SQLQuery, error) {
	builder := sq.Select(target.columnList()...).
		From(target.table())

	if len(plan.Predicates) > 0 {
		where := sq.And{}
		for _, pred := range plan.Predicates {
			cond, err := predicateSqlizer(target, pred)
			if err != nil {
				return SQLQuery{}, err
			}
			where = append(where, cond)
		}
		builder = builder.Where(where)
	}

	key := target.Registry.Key()
	var orderBy []string
	if plan.Sort != nil {
		orderBy = append(orderBy, orderTerm(target, plan.Sort.Column, plan.Sort.Direction))
	}
	if plan.Sort == nil || plan.Sort.Column.Name != key.Name {
		orderBy = append(orderBy, orderTerm(target, key, Asc))
	}

	query, args, err := builder.
		OrderBy(orderBy...).
		Limit(plan.Limit()).
		Offset(plan.Offset()).
		PlaceholderFormat(target.Dialect.Placeholder()).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanAggregate renders an aggregation plan. Output columns are the group
// columns followed by the count.
func PlanAggregate(target Target, plan AggregationPlan) (SQLQuery, error) {
	if len(plan.GroupBy) == 0 {
		return SQLQuery{}, fmt.Errorf("aggregation requires at least one group column")
	}

	groupCols := make([]string, len(plan.GroupBy))
	for i, col := range plan.GroupBy {
		groupCols[i] = target.quote(col)
	}
	countExpr := fmt.Sprintf("COUNT(%s) AS %s", target.quote(target.Registry.Key()), target.Dialect.Quote(CountAlias))

	builder := sq.Select(append(append([]string{}, groupCols...), countExpr)...).
		From(target.table())

	if plan.Filter != nil {
		cond, err := predicateSqlizer(target, *plan.Filter)
		if err != nil {
			return SQLQuery{}, err
		}
		builder = builder.Where(cond)
	}

	query, args, err := builder.
		GroupBy(groupCols...).
		OrderBy(groupCols...).
		PlaceholderFormat(target.Dialect.Placeholder()).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanFindByKey renders a single-row lookup by natural key. With lock set
// the row is locked for the surrounding transaction where supported.
func PlanFindByKey(target Target, key string, lock bool) (SQLQuery, error) {
	builder := sq.Select(target.columnList()...).
		From(target.table()).
		Where(sq.Eq{target.quote(target.Registry.Key()): key})
	if suffix := target.Dialect.LockSuffix(); lock && suffix != "" {
		builder = builder.Suffix(suffix)
	}

	query, args, err := builder.PlaceholderFormat(target.Dialect.Placeholder()).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanInsert renders an insert of every registry column present in rec.
func PlanInsert(target Target, rec schema.Record) (SQLQuery, error) {
	var columns []string
	var values []interface{}
	for _, col := range target.Registry.Columns() {
		value, ok := rec[col.Name]
		if !ok {
			continue
		}
		encoded, err := col.Encode(value)
		if err != nil {
			return SQLQuery{}, err
		}
		columns = append(columns, target.quote(col))
		values = append(values, encoded)
	}
	if len(columns) == 0 {
		return SQLQuery{}, fmt.Errorf("insert requires at least one column")
	}

	query, args, err := sq.Insert(target.table()).
		Columns(columns...).
		Values(values...).
		PlaceholderFormat(target.Dialect.Placeholder()).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanUpdate renders an update of every non-key registry column present in
// rec, matched by the record's key.
func PlanUpdate(target Target, rec schema.Record) (SQLQuery, error) {
	key := target.Registry.Key()
	keyValue, ok := rec[key.Name]
	if !ok || keyValue == nil {
		return SQLQuery{}, fmt.Errorf("update requires a value for key column %s", key.Name)
	}

	update := sq.Update(target.table())
	set := 0
	for _, col := range target.Registry.Columns() {
		if col.IsKey {
			continue
		}
		value, ok := rec[col.Name]
		if !ok {
			continue
		}
		encoded, err := col.Encode(value)
		if err != nil {
			return SQLQuery{}, err
		}
		update = update.Set(target.quote(col), encoded)
		set++
	}
	if set == 0 {
		return SQLQuery{}, fmt.Errorf("update set cannot be empty")
	}

	query, args, err := update.
		Where(sq.Eq{target.quote(key): keyValue}).
		PlaceholderFormat(target.Dialect.Placeholder()).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanCreateTable renders DDL for the registry.
func PlanCreateTable(target Target) SQLQuery {
	cols := target.Registry.Columns()
	defs := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		def := target.quote(col) + " " + target.Dialect.ColumnType(col)
		if !col.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", target.quote(target.Registry.Key())))

	return SQLQuery{
		SQL: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", target.table(), strings.Join(defs, ", ")),
	}
}

func orderTerm(target Target, col schema.Column, dir Direction) string {
	if dir == Desc {
		return target.quote(col) + " DESC"
	}
	return target.quote(col) + " ASC"
}

func predicateSqlizer(target Target, pred Predicate) (sq.Sqlizer, error) {
	column := target.quote(pred.Column)

	switch pred.Operator {
	case OpILike:
		pattern, ok := pred.Value.(string)
		if !ok {
			return nil, fmt.Errorf("ilike on %s requires a string value", pred.Column.Name)
		}
		return target.Dialect.PatternMatch(column, pattern), nil
	case OpContains:
		if !pred.Column.IsMulti() {
			return nil, fmt.Errorf("contains requires a multi-text column, %s is %s", pred.Column.Name, pred.Column.Kind)
		}
		switch v := pred.Value.(type) {
		case string:
			return target.Dialect.ListContains(column, v), nil
		case []string:
			if len(v) == 0 {
				return nil, fmt.Errorf("contains on %s requires at least one element", pred.Column.Name)
			}
			all := sq.And{}
			for _, element := range v {
				all = append(all, target.Dialect.ListContains(column, element))
			}
			return all, nil
		default:
			return nil, fmt.Errorf("contains on %s requires a string or list value", pred.Column.Name)
		}
	case OpEq:
		return eqPredicate(column, pred.Column, pred.Value), nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", pred.Operator)
	}
}

// matchesNothing stands in for an equality no stored value can satisfy.
var matchesNothing = sq.Expr("1 = 0")

// eqPredicate binds scalar comparisons with the column's native type. A value
// that does not convert to an integer or date column matches no rows.
func eqPredicate(quoted string, col schema.Column, raw any) sq.Sqlizer {
	if col.Kind != schema.KindInteger && col.Kind != schema.KindDate {
		return sq.Eq{quoted: raw}
	}
	typed, err := col.Coerce(raw)
	if err != nil || typed == nil {
		return matchesNothing
	}
	encoded, err := col.Encode(typed)
	if err != nil {
		return matchesNothing
	}
	return sq.Eq{quoted: encoded}
}
