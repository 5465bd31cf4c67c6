/*
Package kfd implements the core of a P25 Key Fill Device (KFD) under the
TIA-102.AACD-A Manual Rekeying protocol: the bit-banged Three-Wire Interface
(TWI) physical layer and the Key Management Message (KMM) session layer that
rides on top of it.

# Layering

Control flow is strictly top-down during an operation:

	Dispatcher -> Session -> Framer (build/parse) -> Codec -> Line

Data flow on receive runs bottom-up through the same layers. A [Dispatcher]
is the only type most callers need; it exposes Keyload, KeyloadMany,
EraseKey, EraseAll, and Inventory as a single blocking API, one operation in
flight at a time.

# Wire Discipline

The DATA wire is open-drain: idle is the released, pulled-up state; busy is
actively driven low. A byte frame is 1 start bit (busy) + 8 bits of the byte
with its bits reversed (LSB first) + 1 odd-parity bit + 4 stop bits, at a
configurable bit period (default 250us, 4 kbaud). A [Bus] models the wire
itself so that tests can attach two [Line] ends to the same bus and drive a
real loopback, the way a logic analyzer would see it.

# Sessions

A session begins with a 100ms-busy/5ms-idle key signature, followed
immediately by a READY_REQ byte. The peer's response (0xD0 for a mobile
radio, 0xD1 for another KFD) fixes the peer mode for the session. KMM frames
are then exchanged until the dispatcher sends TRANSFER_DONE and, best-effort,
DISCONNECT. See [Session] for the state machine.
*/
package kfd
