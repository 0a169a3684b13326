package dispatcher

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/limits"
)

const lengthPrefixSize = 4

// WriteFrame writes a single length-prefixed envelope to conn: a 4-byte
// big-endian length followed by body.
func WriteFrame(conn net.Conn, body []byte) error {
	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("dispatcher: write length prefix: %w", err)
	}
	if _, err := conn.Write(body); err != nil {
		return fmt.Errorf("dispatcher: write body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed envelope off conn, rejecting bodies
// larger than limits.MaxEnvelopeWire.
func ReadFrame(conn net.Conn) ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int(n) > limits.MaxEnvelopeWire {
		return nil, fmt.Errorf("dispatcher: frame of %d bytes exceeds MaxEnvelopeWire", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

// ConnPool maintains persistent outbound connections keyed by node
// address, so repeated sends to the same peer reuse one socket instead of
// dialing per message.
type ConnPool struct {
	mu    sync.Mutex
	conns map[string]net.Conn

	dialTimeout time.Duration
}

// NewConnPool builds an empty ConnPool.
func NewConnPool(dialTimeout time.Duration) *ConnPool {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &ConnPool{conns: make(map[string]net.Conn), dialTimeout: dialTimeout}
}

// Get returns an existing connection to addr or dials a new one.
func (p *ConnPool) Get(addr string) (net.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[addr]; ok {
		return conn, nil
	}
	conn, err := net.DialTimeout("tcp", addr, p.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: dial %s: %w", addr, err)
	}
	p.conns[addr] = conn
	logrus.WithFields(logrus.Fields{"function": "Get", "package": "dispatcher", "addr": addr}).Debug("dialed new outbound connection")
	return conn, nil
}

// Drop closes and removes addr's connection, e.g. after a write error.
func (p *ConnPool) Drop(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.conns[addr]; ok {
		_ = conn.Close()
		delete(p.conns, addr)
	}
}

// CloseAll closes every pooled connection.
func (p *ConnPool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, conn := range p.conns {
		_ = conn.Close()
		delete(p.conns, addr)
	}
}
