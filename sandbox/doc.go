// Package sandbox implements the tool sandbox: per-invocation isolated
// execution of untrusted tool code with scoped asset/mount directories,
// capturing filesystem deltas and the tool's stdout result.
package sandbox
