package kfd

import (
	"sync/atomic"
	"time"
)

// KeyloadProgress is called after each key in a KeyloadMany batch completes,
// successfully or not. index is zero-based; total is the batch size.
type KeyloadProgress func(index, total int, item KeyItem, err error)

// Dispatcher is the single entry point every CLI command and higher-level
// caller uses. It owns the Line/Codec pair, enforces that only one
// operation runs at a time, and turns each operation into the session
// handshake plus however many KMM frames it needs.
type Dispatcher struct {
	initialized bool

	line      Line
	codec     *Codec
	sessCfg   SessionConfig
	rxTimeout time.Duration

	inProgress atomic.Bool
	aborted    atomic.Bool
}

// NewDispatcher builds a Dispatcher over line, ready to use. codecCfg or
// sessCfg may be zero-valued; DefaultCodecConfig/DefaultSessionConfig fill
// in for a zero RxTimeout/zero Attempts respectively.
func NewDispatcher(line Line, codecCfg CodecConfig, sessCfg SessionConfig) *Dispatcher {
	if codecCfg.TxKilobaud == 0 && codecCfg.RxKilobaud == 0 {
		codecCfg = DefaultCodecConfig()
	}
	if sessCfg.Attempts == 0 {
		sessCfg = DefaultSessionConfig()
	}
	return &Dispatcher{
		initialized: true,
		line:        line,
		codec:       NewCodec(line, codecCfg),
		sessCfg:     sessCfg,
		rxTimeout:   codecCfg.RxTimeout,
	}
}

// Abort requests that a running KeyloadMany stop before its next key. It is
// a no-op outside KeyloadMany and does not cancel a KMM exchange already in
// flight for the current key.
func (d *Dispatcher) Abort() { d.aborted.Store(true) }

// begin enforces initialization and the single-operation-in-progress rule.
// Callers must defer d.end().
func (d *Dispatcher) begin() error {
	if !d.initialized {
		return newErr(ErrNotInitialized)
	}
	if !d.inProgress.CompareAndSwap(false, true) {
		return newErr(ErrOperationInProgress)
	}
	return nil
}

func (d *Dispatcher) end() { d.inProgress.Store(false) }

// runCommand opens a session, sends frame, waits for one KMM response, and
// tears the session down. It is the shared body of every single-exchange
// operation below.
func (d *Dispatcher) runCommand(frame []byte) (ParsedKMM, error) {
	sess := NewSession(d.line, d.codec, d.sessCfg)
	if err := sess.Open(); err != nil {
		return ParsedKMM{}, err
	}
	defer sess.Close()

	sess.SendFrame(frame)
	resp, err := sess.ReceiveFrame(d.rxTimeout)
	if err != nil {
		return ParsedKMM{}, err
	}
	if resp.MessageID == MsgNegativeAck {
		status, perr := ParseNegativeAck(resp)
		if perr != nil {
			return ParsedKMM{}, perr
		}
		return ParsedKMM{}, negativeAckErr(status)
	}
	return resp, nil
}

// Keyload loads a single key. item.Validate's length check runs first. The
// acknowledgment carries no per-key status of its own, so on success the
// returned KeyStatus is synthesized as StatusCommandPerformed.
func (d *Dispatcher) Keyload(item KeyItem) ([]KeyStatus, error) {
	if err := d.begin(); err != nil {
		return nil, err
	}
	defer d.end()

	if err := item.Validate(); err != nil {
		return nil, err
	}
	resp, err := d.runCommand(BuildModifyKeyCommand([]KeyItem{item}))
	if err != nil {
		return nil, err
	}
	if err := ParseRekeyAck(resp); err != nil {
		return nil, err
	}
	return []KeyStatus{{KeyID: item.KeyID, AlgorithmID: item.AlgorithmID, Status: StatusCommandPerformed}}, nil
}

// KeyloadMany loads items one session at a time (each key gets its own
// handshake, matching the reference firmware's keyloadMultiple), calling
// progress after each. Abort is checked between keys, never mid-exchange;
// an aborted batch returns *Error{Kind: ErrAborted} wrapping however many
// keys had already completed.
func (d *Dispatcher) KeyloadMany(items []KeyItem, progress KeyloadProgress) error {
	if err := d.begin(); err != nil {
		return err
	}
	defer d.end()
	d.aborted.Store(false)

	for i, item := range items {
		if d.aborted.Load() {
			return newErr(ErrAborted)
		}
		err := item.Validate()
		if err == nil {
			resp, rerr := d.runCommand(BuildModifyKeyCommand([]KeyItem{item}))
			if rerr != nil {
				err = rerr
			} else {
				err = ParseRekeyAck(resp)
			}
		}
		if progress != nil {
			progress(i, len(items), item, err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// EraseKey zeroizes the key stored at keysetID/sln, addressed the same way
// the reference firmware's eraseKey is: by keyset and storage location
// number, not by key id.
func (d *Dispatcher) EraseKey(keysetID, sln uint16) error {
	if err := d.begin(); err != nil {
		return err
	}
	defer d.end()

	resp, err := d.runCommand(BuildEraseKeyCommand(keysetID, sln))
	if err != nil {
		return err
	}
	return ParseRekeyAck(resp)
}

// EraseAll zeroizes every key the peer holds.
func (d *Dispatcher) EraseAll() error {
	if err := d.begin(); err != nil {
		return err
	}
	defer d.end()

	_, err := d.runCommand(BuildZeroizeCommand())
	return err
}

// Inventory runs one inventory request and returns the raw response body,
// whose interpretation depends on invType.
func (d *Dispatcher) Inventory(invType InventoryType) ([]byte, error) {
	if err := d.begin(); err != nil {
		return nil, err
	}
	defer d.end()

	resp, err := d.runCommand(BuildInventoryCommand(invType))
	if err != nil {
		return nil, err
	}
	return ParseInventoryResponse(resp)
}

// Shutdown releases SENSE and powers the interface down, as distinct from
// Session.Close's best-effort per-exchange teardown which deliberately
// leaves SENSE asserted.
func (d *Dispatcher) Shutdown() {
	d.line.SenseDisconnect()
	d.line.ReleaseIdle()
}
