// Package engine is the public face of the frame graph: a Runtime that owns
// the registry, tracker, resolver, compiler and executor, and the
// namespace and request API nodes are declared through.
//
// LIFECYCLE:
//
// Nodes are registered under a namespace with a declaration callback. The
// callback does not run at registration; it runs in one batch right before
// the next compilation and receives a *Request to declare what the node
// creates, reads, modifies and renames, plus the render state it needs. It
// returns the execution callback.
//
// Every edit marks the earliest compilation stage it invalidates:
//
//	register / unregister node, wipe owner   NodeDeclarationUpdate
//	fill / clear slot                        NameResolution
//	set node enabled                         DependencyDataCalculation
//	multiplexing extents change              IRGraphBuild
//	static resolution change                 ResourceScheduling
//	allocator reset                          HistoryInitialization
//
// Compile runs the dirty stages and nothing earlier. RunNodes compiles,
// then executes one frame with structural edits locked.
//
// THREADING:
//
// A Runtime is single-threaded. Call every method from the goroutine that
// runs frames. Declaration and execution callbacks run on that goroutine
// too, and must not register or unregister nodes from an execution
// callback.
//
// ERRORS:
//
// Configuration problems never fail a call. They surface as diagnostics on
// the compiled frame (missing resources, conflicting requests, cycles) and
// as validation reports after execution. Edits the runtime refuses return a
// *RuntimeError or one of the tracker's sentinel errors.
package engine
