// Package kv provides the ordered, byte-keyed storage abstraction every
// other component persists through: column families, atomic write batches,
// and prefix iteration, backed by a single embedded bbolt database.
package kv
