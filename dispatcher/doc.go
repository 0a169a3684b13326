// Package dispatcher implements the Network Dispatcher:
// it classifies incoming envelopes by encryption status and schema, routes
// them to handlers, emits ACKs, and drives the subscription protocol over
// a length-prefixed TCP socket.
package dispatcher
