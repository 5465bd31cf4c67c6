package kfd

import (
	"testing"
	"time"
)

func fastSessionConfig() SessionConfig {
	return SessionConfig{
		Attempts:     3,
		AttemptDelay: 2 * time.Millisecond,
		KeySigBusy:   500 * time.Microsecond,
		KeySigIdle:   500 * time.Microsecond,
	}
}

func fastCodecConfig() CodecConfig {
	return CodecConfig{TxKilobaud: 9, RxKilobaud: 9, StopBits: StopBitsBusyThenIdle, RxTimeout: 20 * time.Millisecond}
}

func TestSessionOpenSucceedsOnFirstReadyResponse(t *testing.T) {
	bus := NewBus()
	kfdLine, peerLine := bus.End(0), bus.End(1)
	kfdCodec := NewCodec(kfdLine, fastCodecConfig())
	peerCodec := NewCodec(peerLine, fastCodecConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := peerCodec.ReceiveByte(time.Second); err != nil {
			t.Errorf("peer never saw READY_REQ: %v", err)
			return
		}
		peerCodec.TransmitByte(byte(OpcodeReadyModeMR))
	}()

	sess := NewSession(kfdLine, kfdCodec, fastSessionConfig())
	if err := sess.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.Peer() != PeerMobileRadio {
		t.Fatalf("Peer() = %v, want mobile radio", sess.Peer())
	}
	<-done
}

func TestSessionOpenFailsAfterExhaustingAttempts(t *testing.T) {
	bus := NewBus()
	kfdLine, peerLine := bus.End(0), bus.End(1)
	kfdCodec := NewCodec(kfdLine, fastCodecConfig())
	peerCodec := NewCodec(peerLine, fastCodecConfig())

	cfg := fastSessionConfig()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cfg.Attempts; i++ {
			if _, err := peerCodec.ReceiveByte(time.Second); err != nil {
				return
			}
			peerCodec.TransmitByte(0x55) // not a recognized ready opcode
		}
	}()

	sess := NewSession(kfdLine, kfdCodec, cfg)
	err := sess.Open()
	<-done
	if !IsSessionFailed(err) {
		t.Fatalf("Open error = %v, want ErrSessionFailed", err)
	}
}

func TestSessionCloseSendsDisconnectOnlyAfterTransferDoneEcho(t *testing.T) {
	bus := NewBus()
	kfdLine, peerLine := bus.End(0), bus.End(1)
	kfdCodec := NewCodec(kfdLine, fastCodecConfig())
	peerCodec := NewCodec(peerLine, fastCodecConfig())

	done := make(chan struct{})
	var sawDisconnect bool
	go func() {
		defer close(done)
		b, err := peerCodec.ReceiveByte(time.Second)
		if err != nil || TwiOpcode(b) != OpcodeTransferDone {
			t.Errorf("peer never saw TRANSFER_DONE: b=0x%02X err=%v", b, err)
			return
		}
		peerCodec.TransmitByte(byte(OpcodeTransferDone))

		b, err = peerCodec.ReceiveByte(time.Second)
		sawDisconnect = err == nil && TwiOpcode(b) == OpcodeDisconnect
	}()

	sess := NewSession(kfdLine, kfdCodec, fastSessionConfig())
	sess.Close()
	<-done
	if !sawDisconnect {
		t.Fatalf("peer never saw DISCONNECT after echoing TRANSFER_DONE")
	}
}

func TestSessionCloseSkipsDisconnectWithoutEcho(t *testing.T) {
	bus := NewBus()
	kfdLine, peerLine := bus.End(0), bus.End(1)
	kfdCodec := NewCodec(kfdLine, fastCodecConfig())
	peerCodec := NewCodec(peerLine, fastCodecConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Drain TRANSFER_DONE but never echo it back.
		if _, err := peerCodec.ReceiveByte(time.Second); err != nil {
			t.Errorf("peer never saw TRANSFER_DONE: %v", err)
			return
		}
		// No echo. Close must not send DISCONNECT; confirm nothing more
		// arrives within a bound.
		if b, err := peerCodec.ReceiveByte(100 * time.Millisecond); err == nil {
			t.Errorf("peer saw unexpected byte 0x%02X after withholding the echo", b)
		}
	}()

	sess := NewSession(kfdLine, kfdCodec, fastSessionConfig())
	sess.Close()
	<-done
}
