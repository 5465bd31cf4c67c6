package kfd

import (
	"testing"
	"time"
)

// loopbackPair returns two Codecs wired to opposite ends of the same Bus.
func loopbackPair() (*Codec, *Codec) {
	bus := NewBus()
	cfg := CodecConfig{TxKilobaud: 9, RxKilobaud: 9, StopBits: StopBitsBusyThenIdle, RxTimeout: time.Second}
	a := NewCodec(bus.End(0), cfg)
	b := NewCodec(bus.End(1), cfg)
	return a, b
}

func TestCodecRoundTripAllBytes(t *testing.T) {
	tx, rx := loopbackPair()

	for b := 0; b < 256; b++ {
		want := byte(b)
		done := make(chan struct{})
		go func() {
			tx.TransmitByte(want)
			close(done)
		}()

		got, err := rx.ReceiveByte(time.Second)
		<-done
		if err != nil {
			t.Fatalf("byte 0x%02X: ReceiveByte error: %v", want, err)
		}
		if got != want {
			t.Fatalf("byte 0x%02X round-tripped as 0x%02X", want, got)
		}
	}
}

func TestCodecReceiveTimeout(t *testing.T) {
	bus := NewBus()
	cfg := CodecConfig{TxKilobaud: 9, RxKilobaud: 9, RxTimeout: 10 * time.Millisecond}
	rx := NewCodec(bus.End(1), cfg)

	_, err := rx.ReceiveByte(10 * time.Millisecond)
	if err != ErrRxTimeout {
		t.Fatalf("expected ErrRxTimeout on idle line, got %v", err)
	}
}

func TestBitReverseInvolution(t *testing.T) {
	for b := 0; b < 256; b++ {
		if got := bitReverse(bitReverse(byte(b))); got != byte(b) {
			t.Fatalf("bitReverse(bitReverse(0x%02X)) = 0x%02X, want 0x%02X", b, got, b)
		}
	}
}

func TestBitReverseKnownValues(t *testing.T) {
	cases := map[byte]byte{
		0x00: 0x00,
		0xFF: 0xFF,
		0x01: 0x80,
		0x80: 0x01,
		0x0F: 0xF0,
	}
	for in, want := range cases {
		if got := bitReverse(in); got != want {
			t.Fatalf("bitReverse(0x%02X) = 0x%02X, want 0x%02X", in, got, want)
		}
	}
}

func TestParityMakesOddTotalOnes(t *testing.T) {
	for b := 0; b < 256; b++ {
		ones := popcount(byte(b))
		p := parityBit(byte(b))
		total := ones + int(p)
		if total%2 == 0 {
			t.Fatalf("byte 0x%02X: data ones=%d parity=%d, total %d is even, want odd", b, ones, p, total)
		}
	}
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}
