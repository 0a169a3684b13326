// Package limits provides centralized size constants and validation
// functions for envelopes, inbox content, and tool invocations, so every
// otherwise-independent component of the node enforces the same ceilings.
//
// # Size Hierarchy
//
//   - MaxEnvelopeBody (1 MiB): the maximum size of a single envelope's
//     inner message_data before encryption.
//
//   - MaxEnvelopeWire (MaxEnvelopeBody + 4096): the maximum size of a fully
//     serialized, length-prefixed envelope as read off the socket, allowing
//     headroom for outer-layer encryption overhead.
//
//   - MaxInboxContent (16 KiB): the maximum size of stored message content
//     returned from an inbox read.
//
//   - MaxToolOutput (4 MiB): the maximum stdout captured from a sandboxed
//     tool invocation before it is parsed as a result object.
//
// # Validation Functions
//
// ValidateSize, ValidateEnvelopeBody and ValidateEnvelopeWire reject empty
// payloads and size-limit violations; ValidateToolOutput checks only the
// size limit and accepts empty output:
//
//	err := limits.ValidateEnvelopeBody(data)
//	if err != nil {
//	    // ErrEmpty or ErrTooLarge
//	}
//
// For custom size limits, use the generic ValidateSize function:
//
//	err := limits.ValidateSize(data, 4096)
package limits
