// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"net/http"
	"time"

	"github.com/bassosimone/runtimex"
	"golang.org/x/net/http2"
)

// NewDefaultTransport returns the [*http.Transport] used by [NewDefaultBuilder].
//
// The transport dials through cfg.Dialer, logging connection events using
// logger, does not use proxies and speaks HTTP/2 when the server supports
// it, with periodic health checks of idle HTTP/2 connections.
func NewDefaultTransport(cfg *Config, logger SLogger) *http.Transport {
	txp := &http.Transport{
		DialContext:           newLoggingDialer(cfg, logger).DialContext,
		ExpectContinueTimeout: time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          16,
		TLSHandshakeTimeout:   10 * time.Second,
	}
	h2txp := runtimex.PanicOnError1(http2.ConfigureTransports(txp))
	h2txp.ReadIdleTimeout = 30 * time.Second
	h2txp.PingTimeout = 15 * time.Second
	return txp
}
