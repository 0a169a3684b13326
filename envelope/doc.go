// Package envelope implements the signed/encrypted message envelope that
// carries payloads between Shinkai nodes: the builder contract, outer-layer
// decryption, canonical hashing, and the schema tag enumeration.
package envelope
