// Package wsfanout implements the WebSocket Fanout: a
// topic/subtopic real-time update bus layered over the permission registry,
// encrypting every outbound event under the connection's session-scoped
// AES-256-GCM shared key.
package wsfanout
