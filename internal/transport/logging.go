// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"
)

// LoggingTransport counts payloads and logs them at debug level.
type LoggingTransport struct {
	sent  atomic.Uint64
	bytes atomic.Uint64
	// Every controls how often a summary is logged; zero logs every payload.
	Every uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport(every uint64) *LoggingTransport {
	logger.Infof("Using LoggingTransport")
	return &LoggingTransport{Every: every}
}

// Send records the payload size.
func (lt *LoggingTransport) Send(data []byte) error {
	n := lt.sent.Add(1)
	total := lt.bytes.Add(uint64(len(data)))
	if lt.Every == 0 || n%lt.Every == 0 {
		logger.Debugf("Payload %d: %d bytes (%d total)", n, len(data), total)
	}
	return nil
}

// Sent returns the number of payloads and bytes received so far.
func (lt *LoggingTransport) Sent() (payloads, bytes uint64) {
	return lt.sent.Load(), lt.bytes.Load()
}

// Close logs the totals.
func (lt *LoggingTransport) Close() error {
	n, b := lt.Sent()
	logger.Infof("LoggingTransport closed after %d payloads (%d bytes)", n, b)
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
