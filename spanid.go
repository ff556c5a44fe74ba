// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns the UUIDv7 that tags the events of one round trip.
//
// Each request sent by a [*CompiledClient] gets a fresh ID shared by its
// httpRoundTrip and httpBodyStream events, so a log consumer can group the
// events of concurrent lookups. IDs created later sort after earlier ones.
//
// It panics if the system random number generator fails.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
