//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package ipquery

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// loggingDialer is the [Dialer] used by [NewDefaultTransport].
//
// It emits connectStart/connectDone around each dial and returns
// connections that emit closeStart/closeDone at [slog.LevelInfo] and
// readDone/writeDone at [slog.LevelDebug].
type loggingDialer struct {
	dialer        Dialer
	errClassifier ErrClassifier
	logger        SLogger
	timeNow       func() time.Time
}

func newLoggingDialer(cfg *Config, logger SLogger) *loggingDialer {
	return &loggingDialer{
		dialer:        cfg.Dialer,
		errClassifier: cfg.ErrClassifier,
		logger:        logger,
		timeNow:       cfg.TimeNow,
	}
}

var _ Dialer = &loggingDialer{}

// DialContext implements [Dialer].
func (d *loggingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	t0 := d.timeNow()
	deadline, _ := ctx.Deadline()
	d.logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)

	conn, err := d.dialer.DialContext(ctx, network, address)

	d.logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", d.errClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", d.timeNow()),
	)
	if err != nil {
		return nil, err
	}
	return &loggingConn{
		Conn:   conn,
		dialer: d,
		endpoint: []any{
			slog.String("localAddr", safeconn.LocalAddr(conn)),
			slog.String("protocol", safeconn.Network(conn)),
			slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		},
	}, nil
}

// loggingConn is a [net.Conn] created by [*loggingDialer].
type loggingConn struct {
	net.Conn
	closeOnce sync.Once
	dialer    *loggingDialer
	endpoint  []any
}

// Close implements [net.Conn]. Subsequent calls return [net.ErrClosed].
func (c *loggingConn) Close() (err error) {
	err = net.ErrClosed
	c.closeOnce.Do(func() {
		t0 := c.dialer.timeNow()
		c.dialer.logger.Info("closeStart", append(c.endpoint, slog.Time("t", t0))...)
		err = c.Conn.Close()
		c.logDone(slog.LevelInfo, "closeDone", t0, 0, err)
	})
	return
}

// Read implements [net.Conn].
func (c *loggingConn) Read(buf []byte) (int, error) {
	t0 := c.dialer.timeNow()
	count, err := c.Conn.Read(buf)
	c.logDone(slog.LevelDebug, "readDone", t0, count, err)
	return count, err
}

// Write implements [net.Conn].
func (c *loggingConn) Write(data []byte) (int, error) {
	t0 := c.dialer.timeNow()
	count, err := c.Conn.Write(data)
	c.logDone(slog.LevelDebug, "writeDone", t0, count, err)
	return count, err
}

func (c *loggingConn) logDone(level slog.Level, msg string, t0 time.Time, count int, err error) {
	args := append([]any{
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.dialer.errClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", c.dialer.timeNow()),
	}, c.endpoint...)
	if level == slog.LevelDebug {
		c.dialer.logger.Debug(msg, args...)
		return
	}
	c.dialer.logger.Info(msg, args...)
}
