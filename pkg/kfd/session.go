package kfd

import "time"

// PeerKind identifies what answered a ready request.
type PeerKind int

const (
	PeerUnknown PeerKind = iota
	PeerMobileRadio
	PeerKFD
)

func (p PeerKind) String() string {
	switch p {
	case PeerMobileRadio:
		return "mobile radio"
	case PeerKFD:
		return "KFD"
	default:
		return "unknown"
	}
}

// SessionConfig tunes the handshake and teardown behavior. Zero value is not
// valid; use DefaultSessionConfig.
type SessionConfig struct {
	Attempts         int           // handshake attempts before giving up
	AttemptDelay     time.Duration // fixed delay between attempts, no backoff
	PostReadyDelay   time.Duration // optional settle delay after a ready response, before the first KMM
	KeySigBusy       time.Duration // key-signature continuous busy hold
	KeySigIdle       time.Duration // key-signature continuous idle hold
}

// DefaultSessionConfig is 3 attempts, 500ms apart, a 100ms/5ms key signature,
// and no post-ready settle delay — the values spec.md's handshake section
// states as fixed rather than configurable.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Attempts:       3,
		AttemptDelay:   500 * time.Millisecond,
		PostReadyDelay: 0,
		KeySigBusy:     100 * time.Millisecond,
		KeySigIdle:     5 * time.Millisecond,
	}
}

// Session drives one KFD-to-peer handshake and the KMM exchange that follows
// it, over a Codec/Line pair. It owns no retry state of its own beyond a
// single handshake; the Dispatcher is what sequences multiple operations
// across sessions.
type Session struct {
	line  Line
	codec *Codec
	cfg   SessionConfig
	peer  PeerKind
}

// NewSession returns a Session ready to Open over line using codec for byte
// framing.
func NewSession(line Line, codec *Codec, cfg SessionConfig) *Session {
	return &Session{line: line, codec: codec, cfg: cfg}
}

// Peer reports what the last successful Open found on the other end.
func (s *Session) Peer() PeerKind { return s.peer }

// sendKeySignature emits the 100ms-busy/5ms-idle key signature immediately
// followed by a READY_REQ byte, with no intervening delay — spec.md's
// handshake section requires the READY_REQ to follow the signature's idle
// edge without gap.
func (s *Session) sendKeySignature() {
	s.line.DriveBusy()
	s.line.DelayMicroseconds(uint32(s.cfg.KeySigBusy.Microseconds()))
	s.line.ReleaseIdle()
	s.line.DelayMicroseconds(uint32(s.cfg.KeySigIdle.Microseconds()))
	s.codec.TransmitByte(byte(OpcodeReadyRequest))
}

// Open runs the handshake: up to cfg.Attempts key-signature/READY_REQ
// cycles, each followed by a bounded wait for a ready response, spaced
// cfg.AttemptDelay apart with no backoff or jitter. It returns
// *Error{Kind: ErrSessionFailed} if no attempt sees 0xD0 or 0xD1.
func (s *Session) Open() error {
	for attempt := 0; attempt < s.cfg.Attempts; attempt++ {
		if attempt > 0 {
			delayMicroseconds(uint32(s.cfg.AttemptDelay.Microseconds()))
		}

		s.sendKeySignature()

		b, err := s.codec.ReceiveByte(0)
		if err == nil {
			switch TwiOpcode(b) {
			case OpcodeReadyModeMR:
				s.peer = PeerMobileRadio
				if s.cfg.PostReadyDelay > 0 {
					delayMicroseconds(uint32(s.cfg.PostReadyDelay.Microseconds()))
				}
				return nil
			case OpcodeReadyModeKVL:
				s.peer = PeerKFD
				if s.cfg.PostReadyDelay > 0 {
					delayMicroseconds(uint32(s.cfg.PostReadyDelay.Microseconds()))
				}
				return nil
			}
		}
		// Anything else — timeout or an unrecognized byte — falls through
		// to the next attempt.
	}
	return newErr(ErrSessionFailed)
}

// SendFrame transmits a complete 0xC2 frame (or any other raw byte
// sequence) byte by byte.
func (s *Session) SendFrame(frame []byte) {
	s.codec.TransmitBytes(frame)
}

// ReceiveFrame blocks for one complete KMM frame. If the first byte that
// arrives isn't 0xC2, it returns ErrUnexpectedOpcode with diagnostic bytes
// attached rather than trying to resynchronize.
func (s *Session) ReceiveFrame(timeout time.Duration) (ParsedKMM, error) {
	first, err := s.codec.ReceiveByte(timeout)
	if err != nil {
		return ParsedKMM{}, wrapErr(ErrTimeout, err)
	}
	if TwiOpcode(first) != OpcodeKMM {
		raw := CollectDiagnosticBytes(s.codec, first)
		return ParsedKMM{}, unexpectedOpcodeErr(raw)
	}

	lenHi, err := s.codec.ReceiveByte(timeout)
	if err != nil {
		return ParsedKMM{}, wrapErr(ErrTimeout, err)
	}
	lenLo, err := s.codec.ReceiveByte(timeout)
	if err != nil {
		return ParsedKMM{}, wrapErr(ErrTimeout, err)
	}
	length := int(lenHi)<<8 | int(lenLo)
	if length < 6 || length > 512 {
		return ParsedKMM{}, newErr(ErrMalformedFrame)
	}

	raw := make([]byte, 3+length)
	raw[0] = first
	raw[1] = lenHi
	raw[2] = lenLo
	for i := 0; i < length; i++ {
		b, err := s.codec.ReceiveByte(timeout)
		if err != nil {
			return ParsedKMM{}, wrapErr(ErrTimeout, err)
		}
		raw[3+i] = b
	}
	return ParseFrame(raw)
}

// closeWaitTimeout bounds how long Close waits for the TRANSFER_DONE echo
// and, if sent, the DISCONNECT_ACK, matching kfd_protocol.cpp's endSession.
const closeWaitTimeout = time.Second

// Close performs the best-effort, non-retrying teardown spec.md's handshake
// section describes: send TRANSFER_DONE and wait for the peer to echo it
// back (0xC1). Only then does it send DISCONNECT, matching
// kfd_protocol.cpp's endSession; if the echo never arrives, DISCONNECT is
// never sent and the interface is left enabled. SENSE is deliberately left
// asserted either way; callers that are powering down entirely use
// Dispatcher.Shutdown instead.
func (s *Session) Close() {
	s.codec.TransmitByte(byte(OpcodeTransferDone))

	b, err := s.codec.ReceiveByte(closeWaitTimeout)
	if err != nil || TwiOpcode(b) != OpcodeTransferDone {
		return
	}

	s.codec.TransmitByte(byte(OpcodeDisconnect))
	_, _ = s.codec.ReceiveByte(closeWaitTimeout)
}
