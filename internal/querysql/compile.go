package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/queryir"
)

// tableOrder is the ORDER BY clause of every table. Run log rows are
// ordered by frame and seq, never by insertion time.
var tableOrder = map[string]string{
	"runs":        "id COLLATE BINARY ASC",
	"frames":      "run_id COLLATE BINARY ASC, frame ASC",
	"reports":     "run_id COLLATE BINARY ASC, frame ASC, seq ASC",
	"diagnostics": "run_id COLLATE BINARY ASC, frame ASC, seq ASC",
}

// SQLCompiler compiles queryir queries to parameterized SQL for SQLite.
//
// Every query carries its table's fixed ORDER BY. Values are always
// parameterized, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile validates q and converts it to parameterized SQL.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var where string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(q.Columns, ", "),
		q.From,
		where,
		tableOrder[q.From])
	return sql, params, nil
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.Between:
		return c.compileBetween(pred)
	case *queryir.Between:
		return c.compileBetween(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := valueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

func (c *SQLCompiler) compileBetween(b queryir.Between) (string, []any, error) {
	return b.Field + " BETWEEN ? AND ?", []any{b.Lo, b.Hi}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, p, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		switch pred.(type) {
		case queryir.And, *queryir.And:
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// valueToParam converts a scalar ir.Value to a SQL parameter.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
