// Package queryir provides a small query intermediate representation for
// reading framegraph run logs back out of the store.
//
// A query selects explicit columns from one run log table and filters the
// rows with a conjunction of predicates:
//
//	[trace flags] → [Query IR] → [SQL backend (querysql)]
//
// # Tables
//
// Only the run log tables are addressable: runs, frames, reports and
// diagnostics. Schema lists their columns; Validate rejects anything else.
//
// # Predicates
//
//   - Equals: column = literal
//   - Between: lo <= column <= hi, for integer columns such as frame
//   - And: every predicate holds (empty is always true)
//
// There is no OR, no join and no aggregation. Literals are ir.Value
// scalars, so a filter has the same canonical form as the frames it reads.
//
// # Sealed interfaces
//
// Query and Predicate use the marker method pattern. Only types in this
// package implement them, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Between:
//	case And:
//	}
package queryir
