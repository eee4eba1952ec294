package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/framegraph/internal/ir"
)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// IsValid is true when Problems is empty.
	IsValid bool

	// Problems describes every rule the query breaks, in traversal order.
	Problems []string
}

// Err joins the problems into one error, or returns nil.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	errs := make([]error, len(r.Problems))
	for i, p := range r.Problems {
		errs[i] = errors.New(p)
	}
	return errors.Join(errs...)
}

// Validate checks a query against Schema.
//
// Rules:
//  1. From names a run log table
//  2. Columns is non-empty and every column exists
//  3. Predicates reference existing columns
//  4. Equals values are scalars (string, int, bool)
//  5. Between applies to integer columns only, with Lo <= Hi
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	table    string
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if _, ok := Schema[sel.From]; !ok {
		v.addProblem("unknown table %q", sel.From)
		return
	}
	v.table = sel.From

	if len(sel.Columns) == 0 {
		v.addProblem("no columns selected from %s", sel.From)
	}
	for _, c := range sel.Columns {
		if _, ok := column(sel.From, c); !ok {
			v.addProblem("unknown column %s.%s", sel.From, c)
		}
	}

	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// nil predicates are valid (no filter)
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case Between:
		v.validateBetween(pred)
	case *Between:
		v.validateBetween(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	if _, ok := column(v.table, eq.Field); !ok {
		v.addProblem("unknown column %s.%s", v.table, eq.Field)
	}
	switch eq.Value.(type) {
	case ir.String, ir.Int, ir.Bool:
	default:
		v.addProblem("column %s compared to %T - only string, int and bool literals are allowed", eq.Field, eq.Value)
	}
}

func (v *validator) validateBetween(b Between) {
	c, ok := column(v.table, b.Field)
	switch {
	case !ok:
		v.addProblem("unknown column %s.%s", v.table, b.Field)
	case !c.Integer:
		v.addProblem("column %s.%s is not an integer column", v.table, b.Field)
	}
	if b.Lo > b.Hi {
		v.addProblem("empty range on %s: %d > %d", b.Field, b.Lo, b.Hi)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}
