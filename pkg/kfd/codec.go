package kfd

import (
	"errors"
	"time"
)

// StopBitPolarity selects what the codec drives during the 4 stop bits.
type StopBitPolarity int

const (
	// StopBitsBusyThenIdle drives all 4 stop bits busy, then releases to
	// idle (the KFDtool-reference convention this codec defaults to).
	StopBitsBusyThenIdle StopBitPolarity = iota
	// StopBitsIdle drives all 4 stop bits idle (standard async serial).
	StopBitsIdle
)

// CodecConfig holds the timing and framing knobs spec.md §6 enumerates.
type CodecConfig struct {
	TxKilobaud  uint8 // 1-9
	RxKilobaud  uint8 // 1-9
	StopBits    StopBitPolarity
	RxTimeout   time.Duration // default receive timeout, used when callers pass 0
}

// DefaultCodecConfig is 4 kbaud both ways with busy stop bits and a 5s
// default receive timeout, matching spec.md's stated defaults.
func DefaultCodecConfig() CodecConfig {
	return CodecConfig{
		TxKilobaud: 4,
		RxKilobaud: 4,
		StopBits:   StopBitsBusyThenIdle,
		RxTimeout:  5 * time.Second,
	}
}

func bitPeriodUs(kbaud uint8) uint32 {
	if kbaud == 0 {
		kbaud = 4
	}
	return 1000 / uint32(kbaud)
}

// Codec encodes and decodes single bytes to and from the on-wire TWI format
// defined in spec.md §3/§4.2: 1 start bit, 8 bit-reversed data bits LSB
// first, 1 odd-parity bit, 4 stop bits, each held for one bit period, plus a
// mandatory inter-byte gap.
type Codec struct {
	line       Line
	txPeriodUs uint32
	rxPeriodUs uint32
	stopBits   StopBitPolarity
	rxTimeout  time.Duration
}

// NewCodec returns a Codec driving line per cfg.
func NewCodec(line Line, cfg CodecConfig) *Codec {
	return &Codec{
		line:       line,
		txPeriodUs: bitPeriodUs(cfg.TxKilobaud),
		rxPeriodUs: bitPeriodUs(cfg.RxKilobaud),
		stopBits:   cfg.StopBits,
		rxTimeout:  cfg.RxTimeout,
	}
}

// ErrRxTimeout is returned by ReceiveByte when no start bit, or no stop-bit
// release, arrives within the bound.
var ErrRxTimeout = errors.New("kfd: receive timeout")

// TransmitByte sends one byte on the wire. Interrupt-disable brackets are
// not available from a Go goroutine, so callers that need the bounded
// critical-section guarantee of spec.md §5 should pin this goroutine
// (runtime.LockOSThread) before a session and unlock after; TransmitByte
// itself only guarantees bit-period-accurate timing via the busy-wait clock.
func (c *Codec) TransmitByte(b byte) {
	reversed := bitReverse(b)
	// Odd parity over the 8 data bits: the bit is set when b's popcount is
	// even, so data bits + parity always sum to an odd count of ones.
	parity := parityBit(b)

	// 10-bit shift register: bit0=start(busy), bits1-8=reversed LSB first,
	// bit9=parity. Built as the source does: start bit folded into the
	// "0 = busy" convention of each shifted bit.
	frame := uint16(reversed) | uint16(parity)<<8
	frame <<= 1 // bit 0 = start bit = 0 (busy)

	for i := 0; i < 10; i++ {
		if frame&0x01 != 0 {
			c.line.ReleaseIdle()
		} else {
			c.line.DriveBusy()
		}
		c.line.DelayMicroseconds(c.txPeriodUs)
		frame >>= 1
	}

	if c.stopBits == StopBitsBusyThenIdle {
		c.line.DriveBusy()
		for i := 0; i < 4; i++ {
			c.line.DelayMicroseconds(c.txPeriodUs)
		}
		c.line.ReleaseIdle()
	} else {
		c.line.ReleaseIdle()
		for i := 0; i < 4; i++ {
			c.line.DelayMicroseconds(c.txPeriodUs)
		}
	}

	// Mandatory inter-byte gap: at least 2 bit periods of idle.
	c.line.DelayMicroseconds(c.txPeriodUs * 2)
}

// TransmitBytes sends each byte of data in order via TransmitByte.
func (c *Codec) TransmitBytes(data []byte) {
	for _, b := range data {
		c.TransmitByte(b)
	}
}

// ReceiveByte blocks for one byte, honoring timeout (0 means use the
// codec's configured default). It returns ErrRxTimeout if no start bit
// appears within the bound.
//
// If the line is already busy when called, the peer's start bit is assumed
// to be already in progress: sampling begins immediately, without the
// half-bit-period centering delay. This is a deliberate choice preserved
// from the reference firmware — a peer that answers faster than the caller
// can arm the receiver must still be read correctly, even at the cost of
// occasionally sampling a little off-center.
func (c *Codec) ReceiveByte(timeout time.Duration) (byte, error) {
	if timeout <= 0 {
		timeout = c.rxTimeout
	}

	alreadyBusy := c.line.Sample() == Busy
	if !alreadyBusy {
		deadline := time.Now().Add(timeout)
		for c.line.Sample() == Idle {
			if time.Now().After(deadline) {
				return 0, ErrRxTimeout
			}
		}
	}

	if !alreadyBusy {
		c.line.DelayMicroseconds(c.rxPeriodUs / 2)
	}

	var raw uint16
	for bitsLeft := 10; bitsLeft > 0; bitsLeft-- {
		if c.line.Sample() == Idle {
			raw |= 0x0400
		}
		raw >>= 1
		if bitsLeft > 1 {
			c.line.DelayMicroseconds(c.rxPeriodUs)
		}
	}
	raw >>= 1 // discard the start bit

	// Wait out the stop bits, bounded by a 50ms safety ceiling regardless
	// of configured bit period.
	stopDeadline := time.Now().Add(50 * time.Millisecond)
	for c.line.Sample() == Busy {
		if time.Now().After(stopDeadline) {
			break
		}
	}

	rawByte := byte(raw)
	return bitReverse(rawByte), nil
}
