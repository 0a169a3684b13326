// Package limits provides centralized size limits for envelopes, inbox
// content, and tool invocations. This ensures consistent validation across
// otherwise independent components of the node.
package limits

import "errors"

const (
	// MaxEnvelopeBody is the maximum size of a single envelope's inner
	// message_data before encryption (1 MiB, the same ceiling as
	// crypto.MaxMessageSize).
	MaxEnvelopeBody = 1024 * 1024

	// MaxEnvelopeWire is the maximum size of a fully serialized envelope as
	// it appears on the wire, after the 4-byte length prefix.
	// Encryption overhead (Noise handshake + ChaCha20-Poly1305 tag) is
	// bounded, so this allows generous headroom over MaxEnvelopeBody.
	MaxEnvelopeWire = MaxEnvelopeBody + 4096

	// MaxInboxContent is the maximum size of stored message content
	// returned from a read, allowing padding for privacy.
	MaxInboxContent = 16384

	// MaxToolOutput caps the stdout captured from a sandboxed tool
	// invocation before it is parsed as a result object.
	MaxToolOutput = 4 * 1024 * 1024

	// AEADOverhead is the ChaCha20-Poly1305 / AES-256-GCM authentication
	// tag size added to any AEAD-sealed payload.
	AEADOverhead = 16
)

var (
	// ErrEmpty indicates an empty payload was provided where one is required.
	ErrEmpty = errors.New("empty payload")

	// ErrTooLarge indicates a payload exceeds the relevant maximum size.
	ErrTooLarge = errors.New("payload too large")
)

// ValidateSize validates a payload against the specified maximum size,
// rejecting empty payloads.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > maxSize {
		return ErrTooLarge
	}
	return nil
}

// ValidateEnvelopeBody validates an envelope's inner message_data size.
func ValidateEnvelopeBody(data []byte) error {
	return ValidateSize(data, MaxEnvelopeBody)
}

// ValidateEnvelopeWire validates a fully serialized, length-prefixed
// envelope as read off the socket.
func ValidateEnvelopeWire(data []byte) error {
	return ValidateSize(data, MaxEnvelopeWire)
}

// ValidateToolOutput validates captured stdout from a tool invocation.
func ValidateToolOutput(data []byte) error {
	if len(data) > MaxToolOutput {
		return ErrTooLarge
	}
	return nil
}
