package kfd

import (
	"sync"
	"testing"
	"time"
)

func testDispatcherOverBus() *Dispatcher {
	bus := NewBus()
	line := bus.End(0) // no peer on End(1): every session handshake times out
	sessCfg := SessionConfig{
		Attempts:     2,
		AttemptDelay: 5 * time.Millisecond,
		KeySigBusy:   500 * time.Microsecond,
		KeySigIdle:   500 * time.Microsecond,
	}
	codecCfg := CodecConfig{TxKilobaud: 9, RxKilobaud: 9, StopBits: StopBitsBusyThenIdle, RxTimeout: 5 * time.Millisecond}
	return NewDispatcher(line, codecCfg, sessCfg)
}

func TestDispatcherRejectsConcurrentOperations(t *testing.T) {
	d := testDispatcherOverBus()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = d.Inventory(InventoryNull)
	}()
	time.Sleep(time.Millisecond) // let the first call claim inProgress
	go func() {
		defer wg.Done()
		_, errs[1] = d.Inventory(InventoryNull)
	}()
	wg.Wait()

	sawInProgress := false
	for _, err := range errs {
		if kindIs(err, ErrOperationInProgress) {
			sawInProgress = true
		}
	}
	if !sawInProgress {
		t.Fatalf("expected one of the two concurrent calls to see ErrOperationInProgress, got %v", errs)
	}
}

// drainFrame reads one complete 0xC2 frame off codec, the way a peer would,
// without interpreting it.
func drainFrame(t *testing.T, codec *Codec) {
	t.Helper()
	opcode, err := codec.ReceiveByte(time.Second)
	if err != nil || TwiOpcode(opcode) != OpcodeKMM {
		t.Fatalf("peer expected a KMM frame, got opcode=0x%02X err=%v", opcode, err)
	}
	hi, err := codec.ReceiveByte(time.Second)
	if err != nil {
		t.Fatalf("peer read length hi: %v", err)
	}
	lo, err := codec.ReceiveByte(time.Second)
	if err != nil {
		t.Fatalf("peer read length lo: %v", err)
	}
	length := int(hi)<<8 | int(lo)
	for i := 0; i < length; i++ {
		if _, err := codec.ReceiveByte(time.Second); err != nil {
			t.Fatalf("peer read frame body byte %d: %v", i, err)
		}
	}
}

func TestDispatcherAbortBetweenKeysSkipsRemainingBatch(t *testing.T) {
	bus := NewBus()
	kfdLine, peerLine := bus.End(0), bus.End(1)
	codecCfg := CodecConfig{TxKilobaud: 9, RxKilobaud: 9, StopBits: StopBitsBusyThenIdle, RxTimeout: time.Second}
	sessCfg := SessionConfig{Attempts: 1, KeySigBusy: 500 * time.Microsecond, KeySigIdle: 500 * time.Microsecond}
	d := NewDispatcher(kfdLine, codecCfg, sessCfg)

	peerCodec := NewCodec(peerLine, codecCfg)
	peerDone := make(chan struct{})
	go func() {
		defer close(peerDone)
		// One full exchange for the first key: handshake, drain the
		// ModifyKey command, ack it, then drain the session teardown bytes.
		if _, err := peerCodec.ReceiveByte(time.Second); err != nil {
			t.Errorf("peer never saw READY_REQ: %v", err)
			return
		}
		peerCodec.TransmitByte(byte(OpcodeReadyModeMR))
		drainFrame(t, peerCodec)
		peerCodec.TransmitBytes(buildCommand(MsgRekeyAck, nil))
		peerCodec.ReceiveByte(time.Second)               // TRANSFER_DONE
		peerCodec.TransmitByte(byte(OpcodeTransferDone)) // echo it back
		peerCodec.ReceiveByte(time.Second)               // DISCONNECT
	}()

	items := []KeyItem{
		{KeysetID: 1, SLN: 1, KeyID: 1, AlgorithmID: AlgoAES256, Key: make([]byte, 32)},
		{KeysetID: 1, SLN: 2, KeyID: 2, AlgorithmID: AlgoAES256, Key: make([]byte, 32)},
	}

	var seen []int
	err := d.KeyloadMany(items, func(index, total int, item KeyItem, err error) {
		seen = append(seen, index)
		if index == 0 {
			d.Abort()
		}
	})
	<-peerDone
	if !IsAborted(err) {
		t.Fatalf("KeyloadMany error = %v, want ErrAborted", err)
	}
	if len(seen) != 1 || seen[0] != 0 {
		t.Fatalf("progress calls = %v, want exactly [0] — second key must be skipped", seen)
	}
}

func TestDispatcherKeyloadManyStopsOnFirstError(t *testing.T) {
	d := testDispatcherOverBus()

	items := []KeyItem{
		{KeysetID: 1, SLN: 1, KeyID: 1, AlgorithmID: AlgoAES256, Key: []byte{0x01}}, // wrong length
		{KeysetID: 1, SLN: 2, KeyID: 2, AlgorithmID: AlgoAES256, Key: make([]byte, 32)},
	}

	var seen []int
	err := d.KeyloadMany(items, func(index, total int, item KeyItem, err error) {
		seen = append(seen, index)
	})
	if err == nil {
		t.Fatalf("expected an error from the first item's invalid key length")
	}
	if len(seen) != 1 || seen[0] != 0 {
		t.Fatalf("progress calls = %v, want exactly [0]", seen)
	}
}

func TestDispatcherRequiresInitialization(t *testing.T) {
	var d Dispatcher
	if _, err := d.Inventory(InventoryNull); !kindIs(err, ErrNotInitialized) {
		t.Fatalf("Inventory on zero-value Dispatcher = %v, want ErrNotInitialized", err)
	}
}
