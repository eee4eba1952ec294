package queryir

import "github.com/roach88/framegraph/internal/ir"

// Query represents an abstract query over the run log.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads explicit columns from one table.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <table order>
//
// Example:
//
//	Select{
//	  From:    "reports",
//	  Columns: []string{"frame", "node", "kind"},
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "run_id", Value: ir.String("0192f0c4-...")},
//	    Between{Field: "frame", Lo: 10, Hi: 20},
//	  }},
//	}
//
// The row order is fixed per table by the backend; a query cannot change
// it.
type Select struct {
	From    string    // Table name (one of Schema's keys)
	Columns []string  // Selected columns, in output order
	Filter  Predicate // WHERE conditions (nil = no filter)
}

func (Select) queryNode() {}

// Equals represents a column-equals-literal predicate.
//
// Value must be an ir.String, ir.Int or ir.Bool.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// Between represents an inclusive integer range on a column.
type Between struct {
	Field string
	Lo    int64
	Hi    int64
}

func (Between) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Column is one addressable column of a run log table.
type Column struct {
	Name string
	// Integer is set for INTEGER columns, the only ones Between accepts.
	Integer bool
}

// Schema lists the columns of every run log table.
var Schema = map[string][]Column{
	"runs": {
		{Name: "id"}, {Name: "source"}, {Name: "extents"},
		{Name: "engine_version"}, {Name: "ir_version"},
	},
	"frames": {
		{Name: "run_id"}, {Name: "frame", Integer: true}, {Name: "hash"},
		{Name: "scheduled"}, {Name: "culled"}, {Name: "pruned"}, {Name: "canonical"},
	},
	"reports": {
		{Name: "run_id"}, {Name: "frame", Integer: true}, {Name: "seq", Integer: true},
		{Name: "node"}, {Name: "kind"}, {Name: "slot"}, {Name: "expected"}, {Name: "observed"},
	},
	"diagnostics": {
		{Name: "run_id"}, {Name: "frame", Integer: true}, {Name: "seq", Integer: true},
		{Name: "code"}, {Name: "severity"}, {Name: "message"}, {Name: "node"}, {Name: "resource"},
	},
}

// column looks up a column of table.
func column(table, name string) (Column, bool) {
	for _, c := range Schema[table] {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
