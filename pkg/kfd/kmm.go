package kfd

import (
	"time"
)

// Inner-KMM layout for outbound commands (spec.md §4.3, matching
// kfd_protocol.cpp's buildKmmFrame): message-id (1), message-length
// (2 big-endian, = 7 + body length, counted from the byte after itself),
// message-format (1; top two bits are a ResponseKind), destination RSI (3),
// source RSI (3), body.
//
// Inbound response messages (RekeyAck, NegativeAck) do not follow this
// shape — they are short, fixed-format acknowledgments with the status (if
// any) at a small fixed offset; see ParseNegativeAck.
//
// A full TWI frame wraps the inner KMM:
//
//	opcode    1 byte,  0xC2
//	length    2 bytes, big-endian, = everything after this field including CRC
//	control   1 byte,  0x00
//	dest-RSI  3 bytes
//	<inner KMM>
//	crc       2 bytes, little-endian (low byte first)
const innerKMMHeaderLen = 1 + 2 + 1 + 3 + 3 // message-id..source-RSI
const innerKMMLenFieldBase = 1 + 3 + 3      // format + dest-RSI + source-RSI

// buildInnerKMM assembles one outbound inner KMM message.
func buildInnerKMM(msgID MessageID, format ResponseKind, destRSI, sourceRSI [3]byte, body []byte) []byte {
	msgLen := innerKMMLenFieldBase + len(body)
	inner := make([]byte, 0, innerKMMHeaderLen+len(body))
	inner = append(inner, byte(msgID))
	inner = append(inner, byte(msgLen>>8), byte(msgLen))
	inner = append(inner, byte(format))
	inner = append(inner, destRSI[:]...)
	inner = append(inner, sourceRSI[:]...)
	inner = append(inner, body...)
	return inner
}

// buildFrame wraps inner as a complete 0xC2 TWI frame with control byte 0x00,
// broadcast destination RSI, and an appended little-endian CRC.
func buildFrame(inner []byte) []byte {
	payload := make([]byte, 0, 1+3+len(inner))
	payload = append(payload, 0x00) // control
	payload = append(payload, broadcastRSI[:]...)
	payload = append(payload, inner...)

	crc := crc16(payload)

	length := len(payload) + 2 // + CRC
	frame := make([]byte, 0, 3+len(payload)+2)
	frame = append(frame, byte(OpcodeKMM))
	frame = append(frame, byte(length>>8), byte(length))
	frame = append(frame, payload...)
	frame = append(frame, byte(crc), byte(crc>>8))
	return frame
}

// buildCommand is the common path every outbound command builder uses:
// assemble an inner KMM, wrap it in a frame.
func buildCommand(msgID MessageID, body []byte) []byte {
	inner := buildInnerKMM(msgID, ResponseImmediate, broadcastRSI, broadcastRSI, body)
	return buildFrame(inner)
}

// ParsedKMM is a frame's inner KMM message, stripped of its TWI envelope
// (opcode, length, control, dest-RSI) and CRC. Raw starts at the message-id
// byte; interpreting anything past it depends on MessageID.
type ParsedKMM struct {
	MessageID MessageID
	Raw       []byte
}

// ParseFrame validates a raw 0xC2 TWI frame (opcode, length bounds, CRC) and
// returns its inner KMM. raw must start with the opcode byte.
//
// Any opcode other than 0xC2 is a caller error to hand to this function;
// callers that may see a non-KMM opcode (session control bytes) must branch
// on raw[0] before calling ParseFrame.
func ParseFrame(raw []byte) (ParsedKMM, error) {
	if len(raw) < 3 || TwiOpcode(raw[0]) != OpcodeKMM {
		return ParsedKMM{}, newErr(ErrUnexpectedOpcode)
	}
	length := int(raw[1])<<8 | int(raw[2])
	if length < 6 || length > 512 {
		return ParsedKMM{}, newErr(ErrMalformedFrame)
	}
	if len(raw) != 3+length {
		return ParsedKMM{}, newErr(ErrMalformedFrame)
	}

	payload := raw[3 : 3+length-2]
	wantCRC := uint16(raw[3+length-2]) | uint16(raw[3+length-1])<<8
	if crc16(payload) != wantCRC {
		return ParsedKMM{}, newErr(ErrMalformedFrame)
	}

	if len(payload) < 1+3+1 { // control + dest-RSI + at least a message-id
		return ParsedKMM{}, newErr(ErrMalformedFrame)
	}
	inner := payload[1+3:] // strip control + dest-RSI

	return ParsedKMM{MessageID: MessageID(inner[0]), Raw: inner}, nil
}

// CollectDiagnosticBytes gathers whatever trailing bytes follow an
// unexpected opcode, so a caller can report them rather than silently
// discard the frame. It stops after ~100 bytes or 500ms of inter-byte
// silence, whichever comes first.
func CollectDiagnosticBytes(codec *Codec, first byte) []byte {
	raw := []byte{first}
	for len(raw) < 100 {
		b, err := codec.ReceiveByte(500 * time.Millisecond)
		if err != nil {
			break
		}
		raw = append(raw, b)
	}
	return raw
}

// --- Command builders -------------------------------------------------

// BuildInventoryCommand builds an Inventory command frame for invType.
func BuildInventoryCommand(invType InventoryType) []byte {
	return buildCommand(MsgInventoryCmd, []byte{byte(invType)})
}

const keyFormatErase byte = 0x20 // bit 5

// buildModifyKeyBody assembles a ModifyKeyCommand body per TIA-102.AACA-A:
// one shared KEK/keyset/algorithm/length header followed by a per-key list.
// All keys in one command share a keyset and algorithm/length, matching
// kfd_protocol.cpp's buildModifyKeyCommand — a batch that mixes algorithms
// or keysets needs one command per group.
func buildModifyKeyBody(keys []KeyItem) []byte {
	first := keys[0]
	body := make([]byte, 0, 8+len(keys)*5)
	body = append(body, 0x00)              // decryption instruction format
	body = append(body, 0x00)              // extended decryption instruction format
	body = append(body, byte(AlgoClear))   // KEK algorithm id (0x80 = clear)
	body = append(body, 0x00, 0x00)        // KEK key id
	body = append(body, byte(first.KeysetID))
	body = append(body, byte(first.AlgorithmID))
	body = append(body, byte(len(first.Key)))
	body = append(body, byte(len(keys)))

	for _, k := range keys {
		var format byte
		if k.Erase {
			format |= keyFormatErase
		}
		body = append(body, format)
		body = append(body, byte(k.SLN>>8), byte(k.SLN))
		body = append(body, byte(k.KeyID>>8), byte(k.KeyID))
		body = append(body, k.Key...)
	}
	return body
}

// BuildModifyKeyCommand builds a ModifyKey command frame carrying one or
// more keys that share a keyset and algorithm.
func BuildModifyKeyCommand(keys []KeyItem) []byte {
	return buildCommand(MsgModifyKeyCmd, buildModifyKeyBody(keys))
}

// BuildEraseKeyCommand builds a ModifyKey command frame erasing the key at
// keysetID/sln, reusing the ModifyKey path with the erase format bit set and
// no key material — the same convention kfd_protocol.cpp's eraseKey uses.
func BuildEraseKeyCommand(keysetID, sln uint16) []byte {
	k := KeyItem{KeysetID: keysetID, SLN: sln, Erase: true}
	return BuildModifyKeyCommand([]KeyItem{k})
}

// BuildZeroizeCommand builds the Zeroize-All command frame. Its body is a
// single byte, 0x0A — the reference firmware's Zeroize command is not
// itself parameterized by keyset or key.
func BuildZeroizeCommand() []byte {
	return buildCommand(MsgZeroizeCmd, []byte{0x0A})
}

// --- Response parsers ---------------------------------------------------

// ParseNegativeAck extracts the OperationStatus a negative acknowledgment
// carries. The status sits at raw index 2 — message-id, one reserved byte,
// then status — not at the generic command header's body offset; this
// matches the worked example's byte sequence `08 00 06` (status 0x06,
// invalid MAC) and the reference firmware's literal response[2] read.
func ParseNegativeAck(p ParsedKMM) (OperationStatus, error) {
	if p.MessageID != MsgNegativeAck || len(p.Raw) < 3 {
		return 0, newErr(ErrMalformedFrame)
	}
	return OperationStatus(p.Raw[2]), nil
}

// ParseRekeyAck validates that p is a rekey acknowledgment. The reference
// protocol's acknowledgment carries no per-key status breakdown — a 0x07
// message-id is itself the success signal — so callers that need per-key
// KeyStatus entries (KeyloadMany's progress callback) synthesize them from
// the keys they sent, all StatusCommandPerformed, once this returns nil.
func ParseRekeyAck(p ParsedKMM) error {
	if p.MessageID != MsgRekeyAck {
		return newErr(ErrMalformedFrame)
	}
	return nil
}

// ParseInventoryResponse returns the list bytes an inventory response
// carries, stripped of the generic command header (message-id,
// message-length, format, dest-RSI, source-RSI); interpretation depends on
// the InventoryType that was requested, which the caller already knows.
func ParseInventoryResponse(p ParsedKMM) ([]byte, error) {
	if p.MessageID != MsgInventoryRsp {
		return nil, newErr(ErrMalformedFrame)
	}
	if len(p.Raw) < innerKMMHeaderLen {
		return p.Raw[1:], nil
	}
	return p.Raw[innerKMMHeaderLen:], nil
}
