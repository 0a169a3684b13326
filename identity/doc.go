// Package identity implements the Identity Registry: hierarchical name
// parsing, the tagged Standard/Device/LLMProvider identity variant,
// permission tiers, and a KV-backed registry for persisting and resolving
// them.
package identity
