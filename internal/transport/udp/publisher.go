// SPDX-License-Identifier: MIT
/*
Package udp publishes the spectrum of every rendered frame to an external
listener.

The render loop hands each tick's byte magnitudes to Update; a ticker sends
the latest unsent spectrum at a fixed interval, so a slow network never
reaches back into the loop.

Packet layout (BigEndian):

	|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<---- N Bytes ---->|
	+-------------------+-----------------------+---------------+-------------------+
	|  Sequence Number  |       Timestamp       |   Bin Count   |    Magnitudes     |
	|      (uint32)     |  (int64, Unix nanos)  |   (uint16)    |   (N * uint8)     |
	+-------------------+-----------------------+---------------+-------------------+
*/
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultInterval is about 60 packets per second.
const DefaultInterval = 16 * time.Millisecond

// HeaderSize is the fixed part of every packet.
const HeaderSize = 4 + 8 + 2

// Sender transmits one packet.
type Sender interface {
	Send(data []byte) error
}

// Packet is a decoded spectrum packet.
type Packet struct {
	Seq        uint32
	Timestamp  time.Time
	Magnitudes []uint8
}

var ErrShortPacket = errors.New("udp: packet too short")

// AppendPacket encodes a packet onto dst.
func AppendPacket(dst []byte, seq uint32, ts time.Time, mags []uint8) []byte {
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(ts.UnixNano()))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(mags)))
	return append(dst, mags...)
}

// ParsePacket decodes b. The returned magnitudes alias b.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) < HeaderSize+n {
		return Packet{}, fmt.Errorf("%w: header announces %d bins, have %d bytes", ErrShortPacket, n, len(b)-HeaderSize)
	}
	return Packet{
		Seq:        binary.BigEndian.Uint32(b[0:4]),
		Timestamp:  time.Unix(0, int64(binary.BigEndian.Uint64(b[4:12]))),
		Magnitudes: b[HeaderSize : HeaderSize+n],
	}, nil
}

// UDPPublisher periodically sends the most recent spectrum.
type UDPPublisher struct {
	sender   Sender
	interval time.Duration
	now      func() time.Time

	dataMu sync.Mutex
	latest []uint8
	fresh  bool

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32
	// Send-side buffers, only touched by the publisher goroutine.
	snapshot []uint8
	packet   []byte
}

// NewUDPPublisher creates a publisher. An interval <= 0 means DefaultInterval.
func NewUDPPublisher(interval time.Duration, sender Sender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
		logger.Warnf("Invalid interval provided, defaulting to %s", interval)
	}
	return &UDPPublisher{sender: sender, interval: interval, now: time.Now}, nil
}

// Update stores a copy of mags as the next spectrum to send. Spectra
// longer than a packet can describe are truncated.
func (p *UDPPublisher) Update(mags []uint8) {
	if len(mags) > math.MaxUint16 {
		mags = mags[:math.MaxUint16]
	}
	p.dataMu.Lock()
	p.latest = append(p.latest[:0], mags...)
	p.fresh = true
	p.dataMu.Unlock()
}

// Start begins the periodic publishing. Calling it while running is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("Start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger.Debugf("Publisher started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine and waits for it. Safe to call
// repeatedly.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	logger.Debugf("Publisher stopped after %d packets", p.sequenceNum)
	return nil
}

// publish sends the latest spectrum if it has not been sent yet.
func (p *UDPPublisher) publish() bool {
	p.dataMu.Lock()
	if !p.fresh {
		p.dataMu.Unlock()
		return false
	}
	p.snapshot = append(p.snapshot[:0], p.latest...)
	p.fresh = false
	p.dataMu.Unlock()

	p.sequenceNum++
	p.packet = AppendPacket(p.packet[:0], p.sequenceNum, p.now(), p.snapshot)
	if err := p.sender.Send(p.packet); err != nil {
		return false
	}
	logger.Debugf("Sent packet %d (%d bytes)", p.sequenceNum, len(p.packet))
	return true
}

// Close implements io.Closer.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
