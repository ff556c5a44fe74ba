// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set, which is what the logging dialer needs on connect.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{IP: net.IPv4(104, 26, 4, 4), Port: 443} },
	}
}

func newTestLoggingDialer(conn net.Conn, err error) (*loggingDialer, *[]slog.Record) {
	logger, records := newCapturingLogger()
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return conn, err
		},
	}
	return newLoggingDialer(cfg, logger), records
}

// DialContext logs connectStart and connectDone around a successful dial.
func TestLoggingDialerSuccess(t *testing.T) {
	dialer, records := newTestLoggingDialer(newMinimalConn(), nil)

	conn, err := dialer.DialContext(context.Background(), "tcp", "104.26.4.4:443")

	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, []string{"connectStart", "connectDone"}, recordMessages(*records))
	laddr, found := recordAttr((*records)[1], "localAddr")
	require.True(t, found)
	assert.Equal(t, "127.0.0.1:54321", laddr.String())
}

// DialContext returns dial errors and logs their class.
func TestLoggingDialerFailure(t *testing.T) {
	wantErr := errors.New("mocked dial error")
	dialer, records := newTestLoggingDialer(nil, wantErr)
	dialer.errClassifier = ErrClassifierFunc(func(err error) string { return "ECONNREFUSED" })

	conn, err := dialer.DialContext(context.Background(), "tcp", "104.26.4.4:443")

	assert.Nil(t, conn)
	assert.ErrorIs(t, err, wantErr)
	require.Len(t, *records, 2)
	errClass, found := recordAttr((*records)[1], "errClass")
	require.True(t, found)
	assert.Equal(t, "ECONNREFUSED", errClass.String())
}

// The returned connection logs I/O and closes only once.
func TestLoggingConnIO(t *testing.T) {
	mockConn := newMinimalConn()
	mockConn.ReadFunc = func(b []byte) (int, error) {
		return copy(b, "hello"), nil
	}
	var written []byte
	mockConn.WriteFunc = func(b []byte) (int, error) {
		written = append(written, b...)
		return len(b), nil
	}
	closeCount := 0
	mockConn.CloseFunc = func() error {
		closeCount++
		return nil
	}
	dialer, records := newTestLoggingDialer(mockConn, nil)
	conn, err := dialer.DialContext(context.Background(), "tcp", "104.26.4.4:443")
	require.NoError(t, err)

	buf := make([]byte, 16)
	count, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:count]))

	count, err = conn.Write([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 16, count)
	assert.Equal(t, "GET / HTTP/1.1\r\n", string(written))

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Close(), net.ErrClosed)
	assert.Equal(t, 1, closeCount)

	assert.Equal(t, []string{
		"connectStart", "connectDone", "readDone", "writeDone", "closeStart", "closeDone",
	}, recordMessages(*records))
	for _, record := range (*records)[2:4] {
		assert.Equal(t, slog.LevelDebug, record.Level)
		raddr, found := recordAttr(record, "remoteAddr")
		require.True(t, found)
		assert.Equal(t, "104.26.4.4:443", raddr.String())
	}
}

// I/O errors are returned unchanged.
func TestLoggingConnErrors(t *testing.T) {
	wantErr := errors.New("connection reset")
	mockConn := newMinimalConn()
	mockConn.ReadFunc = func(b []byte) (int, error) { return 0, wantErr }
	mockConn.WriteFunc = func(b []byte) (int, error) { return 0, wantErr }
	mockConn.CloseFunc = func() error { return wantErr }
	dialer, _ := newTestLoggingDialer(mockConn, nil)
	conn, err := dialer.DialContext(context.Background(), "tcp", "104.26.4.4:443")
	require.NoError(t, err)

	_, err = conn.Read(make([]byte, 4))
	assert.ErrorIs(t, err, wantErr)
	_, err = conn.Write([]byte("x"))
	assert.ErrorIs(t, err, wantErr)
	assert.ErrorIs(t, conn.Close(), wantErr)
}
