package kfd

import "sync"

// Bus models a shared open-drain wire pair (DATA + SENSE) the way the
// physical TWI cable behaves: either end may drive a wire low, and the wire
// reads low if *any* end is driving it, high only when every end has
// released it. Two [End] handles attached to the same Bus give a real
// loopback: a byte transmitted from one End is what the other End samples,
// at the same bit timing a logic analyzer would see.
type Bus struct {
	mu        sync.Mutex
	dataDrive [2]bool // per-end: true if that end is actively driving DATA low
	senseConn [2]bool // per-end: true if that end is asserting SENSE
}

// NewBus returns a Bus with both wires released/disconnected.
func NewBus() *Bus { return &Bus{} }

// End returns the Line seen by one side of the bus. idx must be 0 or 1; the
// two ends of a Bus always refer to the two opposite idx values.
func (b *Bus) End(idx int) Line {
	if idx != 0 && idx != 1 {
		panic("kfd: Bus.End index must be 0 or 1")
	}
	return &busEnd{bus: b, idx: idx}
}

func (b *Bus) dataState() LineState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dataDrive[0] || b.dataDrive[1] {
		return Busy
	}
	return Idle
}

func (b *Bus) senseState() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.senseConn[0] || b.senseConn[1]
}

type busEnd struct {
	bus *Bus
	idx int
}

func (e *busEnd) DriveBusy() {
	e.bus.mu.Lock()
	e.bus.dataDrive[e.idx] = true
	e.bus.mu.Unlock()
}

func (e *busEnd) ReleaseIdle() {
	e.bus.mu.Lock()
	e.bus.dataDrive[e.idx] = false
	e.bus.mu.Unlock()
}

func (e *busEnd) Sample() LineState { return e.bus.dataState() }

func (e *busEnd) SenseConnect() {
	e.bus.mu.Lock()
	e.bus.senseConn[e.idx] = true
	e.bus.mu.Unlock()
}

func (e *busEnd) SenseDisconnect() {
	e.bus.mu.Lock()
	e.bus.senseConn[e.idx] = false
	e.bus.mu.Unlock()
}

func (e *busEnd) SenseIsConnected() bool { return e.bus.senseState() }

func (e *busEnd) DelayMicroseconds(us uint32) { delayMicroseconds(us) }
