package dispatcher

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
)

// Start listens on addr and serves inbound envelopes until ctx is
// cancelled, one goroutine per connection.
func (d *Dispatcher) Start(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	logger := logrus.WithFields(logrus.Fields{"function": "Start", "package": "dispatcher", "addr": addr})
	logger.Info("dispatcher listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WithError(err).Warn("accept failed")
			continue
		}
		go d.serveConn(ctx, conn)
	}
}

func (d *Dispatcher) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := logrus.WithFields(logrus.Fields{"function": "serveConn", "package": "dispatcher", "remote": conn.RemoteAddr().String()})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := ReadFrame(conn)
		if err != nil {
			logger.WithError(err).Debug("connection closed")
			return
		}

		reply, err := d.HandleInbound(ctx, raw)
		if err != nil {
			logger.WithError(err).Debug("dropping connection after unrecoverable error")
			return
		}
		if reply == nil {
			continue
		}
		if err := WriteFrame(conn, reply); err != nil {
			logger.WithError(err).Debug("failed to write reply")
			return
		}
	}
}
