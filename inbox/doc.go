// Package inbox implements the Inbox & Job Store: a
// tree-structured, per-inbox message log with parent pointers and an ACL,
// plus job metadata and per-job execution context.
package inbox
