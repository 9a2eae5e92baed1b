// SPDX-License-Identifier: MIT
/*
Package transport carries presented frames out of the process.

A FrameSurface is a render surface: it upscales every frame, encodes it as
PNG and hands the bytes to a Transport. WebSocketTransport broadcasts them
to browser clients and also serves any extra handlers (the recording
artifacts) from the same listener. LoggingTransport only counts what it is
given, which is enough for headless runs.

Spectrum packets for external visualisers go through the udp subpackage.
*/
package transport

import (
	"errors"

	applog "spectrail/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Transport sends encoded payloads to remote listeners.
// Implementations should be thread-safe.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// Listeners is implemented by transports that know whether anyone is
// receiving. A surface skips encoding while there are no listeners.
type Listeners interface {
	Clients() int
}

var logger = applog.Named("transport")
