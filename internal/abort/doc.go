// Package abort provides hierarchical cancellation scopes.
//
// Ownership boundary:
// - abort propagation from parents to listening children
//
// - per-operation deadlines layered on a long-lived tool signal
//
// - bridging to context.Context for process execution
//
// A child never aborts its parent or its siblings.
package abort
