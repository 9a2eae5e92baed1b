// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	applog "spectrail/internal/log"
	"spectrail/internal/transport"
)

var logger = applog.Named("udp")

// UDPSender writes spectrum packets to one connected UDP peer.
type UDPSender struct {
	conn    *net.UDPConn
	target  *net.UDPAddr
	packets atomic.Uint64

	mu     sync.Mutex // Guards conn against a concurrent Close.
	closed bool
}

var _ transport.Transport = (*UDPSender)(nil)

// NewUDPSender dials target, given as "host:port" (e.g. "127.0.0.1:9090").
// No local port is bound.
func NewUDPSender(target string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", target, err)
	}

	logger.Infof("Sending spectra to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn, target: addr}, nil
}

// Target returns the resolved destination.
func (s *UDPSender) Target() *net.UDPAddr { return s.target }

// Packets returns the number of datagrams written.
func (s *UDPSender) Packets() uint64 { return s.packets.Load() }

// Send writes data as one datagram. It fails with transport.ErrClosed after
// Close.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}
	if _, err := s.conn.Write(data); err != nil {
		logger.Debugf("Dropped packet to %s: %v", s.target, err)
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	s.packets.Add(1)
	return nil
}

// Close closes the connection. Later calls are no-ops.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	logger.Infof("Closing connection to %s after %d packets", s.target, s.packets.Load())
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}
