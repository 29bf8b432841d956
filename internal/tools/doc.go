// Package tools provides the process invocation core shared by the wrapped
// device tools.
//
// Ownership boundary:
// - tool instances: executable, option schema, config, env, cancellation scope
//
// - buffered and streaming execution with lifecycle events
//
// - the running process record and bulk termination
//
// - classification of raw process failures at the invocation boundary
//
// Derived tool instances share the executable, schema and process record with
// their parent and copy everything they override.
package tools
