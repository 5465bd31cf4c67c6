package kfd

// TwiOpcode values are the leading byte of every frame on the wire outside a
// KMM frame's own body, per TIA-102.AACD-A's Three-Wire Interface layer.
type TwiOpcode byte

const (
	OpcodeReadyRequest   TwiOpcode = 0xC0 // KFD -> peer
	OpcodeReadyModeMR    TwiOpcode = 0xD0 // peer -> KFD, peer is a mobile radio
	OpcodeReadyModeKVL   TwiOpcode = 0xD1 // peer -> KFD, peer is another KFD
	OpcodeTransferDone   TwiOpcode = 0xC1 // bidirectional
	OpcodeKMM            TwiOpcode = 0xC2 // KMM frame follows
	OpcodeDisconnect     TwiOpcode = 0x92 // KFD -> peer
	OpcodeDisconnectAck  TwiOpcode = 0x90 // peer -> KFD
)

// MessageID identifies the inner KMM message carried inside a 0xC2 frame.
type MessageID byte

const (
	MsgInventoryCmd MessageID = 0x00
	MsgInventoryRsp MessageID = 0x01
	MsgModifyKeyCmd MessageID = 0x04
	MsgRekeyAck     MessageID = 0x07
	MsgNegativeAck  MessageID = 0x08
	MsgZeroizeCmd   MessageID = 0x0A
	MsgZeroizeRsp   MessageID = 0x0F
)

// ResponseKind occupies the top two bits of a KMM's message-format byte.
type ResponseKind byte

const (
	ResponseImmediate ResponseKind = 0xC0
	ResponseDelayed   ResponseKind = 0x80
)

// InventoryType selects the kind of inventory an Inventory command requests.
type InventoryType byte

const (
	InventoryNull                InventoryType = 0x00
	InventorySendDateTime        InventoryType = 0x01
	InventoryListActiveKeysetIDs InventoryType = 0x02
	InventoryListInactiveKsetIDs InventoryType = 0x03
	InventoryListActiveKeyIDs    InventoryType = 0x04
	InventoryListInactiveKeyIDs  InventoryType = 0x05
	InventoryListAllKsetTagging  InventoryType = 0x06
	InventoryListAllUniqueKeys   InventoryType = 0x07
	InventoryListKsetTagging     InventoryType = 0xF9
	InventoryListActiveKeys      InventoryType = 0xFD
	InventoryListMNP             InventoryType = 0xFE
	InventoryListKmfRSI          InventoryType = 0xFF
)

// OperationStatus is the status byte carried at offset 2 of a negative
// acknowledgment's inner KMM, or reported by a response that echoes it.
type OperationStatus byte

const (
	StatusCommandPerformed    OperationStatus = 0x00
	StatusKeyNotLoaded        OperationStatus = 0x01
	StatusKeyOverwritten      OperationStatus = 0x02
	StatusKeyStorageFull      OperationStatus = 0x03
	StatusKeyPreviouslyErased OperationStatus = 0x04
	StatusInvalidMessageID    OperationStatus = 0x05
	StatusInvalidMAC          OperationStatus = 0x06
	StatusInvalidCryptoHeader OperationStatus = 0x07
	StatusInvalidKeyID        OperationStatus = 0x08
	StatusInvalidAlgoID       OperationStatus = 0x09
	StatusInvalidMN           OperationStatus = 0x0A
	StatusInvalidKeyLength    OperationStatus = 0x0B
	StatusInvalidKeysetID     OperationStatus = 0x0C
	StatusUnsupportedFeature  OperationStatus = 0x0D
	StatusKeysetNotFound      OperationStatus = 0x0E
	StatusAlgoNotSupported    OperationStatus = 0x0F
	StatusKeyNotFound         OperationStatus = 0x10
	StatusInternalError       OperationStatus = 0xFF
)

// AlgorithmID identifies a traffic or key-encryption algorithm.
type AlgorithmID byte

const (
	AlgoAccordion13 AlgorithmID = 0x00
	AlgoBatonAuto   AlgorithmID = 0x01
	AlgoFireflyT1   AlgorithmID = 0x02
	AlgoMayflyT1    AlgorithmID = 0x03
	AlgoSaville     AlgorithmID = 0x04
	AlgoPadstone    AlgorithmID = 0x05
	AlgoAccordion4  AlgorithmID = 0x41
	AlgoBatonT3     AlgorithmID = 0x42
	AlgoDESOFB      AlgorithmID = 0x81
	Algo2Key3DES    AlgorithmID = 0x82
	Algo3Key3DES    AlgorithmID = 0x83
	AlgoAES256      AlgorithmID = 0x84
	AlgoAES128      AlgorithmID = 0x85
	AlgoAESCBC      AlgorithmID = 0x86
	AlgoARC4        AlgorithmID = 0x9F
	AlgoADP         AlgorithmID = 0xAA
	AlgoClear       AlgorithmID = 0x80
)

// algoKeyLength maps an algorithm to the key length it expects, in bytes.
// An algorithm absent from this table is unchecked (spec.md §6).
var algoKeyLength = map[AlgorithmID]int{
	AlgoDESOFB:   8,
	Algo2Key3DES: 16,
	Algo3Key3DES: 24,
	AlgoAES256:   32,
	AlgoAES128:   16,
	AlgoAESCBC:   32,
	AlgoARC4:     13,
	AlgoADP:      5,
	AlgoClear:    0,
}

// ExpectedKeyLength reports the key length an algorithm expects and whether
// the algorithm is one this table knows about.
func ExpectedKeyLength(algo AlgorithmID) (length int, known bool) {
	length, known = algoKeyLength[algo]
	return
}

// KeyType distinguishes a traffic key from a key-encryption key by SLN range.
type KeyType int

const (
	KeyTypeTEK KeyType = iota
	KeyTypeKEK
)

// kekSLNFloor is the first SLN value reserved for key-encryption keys;
// everything below it is a traffic key.
const kekSLNFloor = 0xF000

// ClassifySLN returns KeyTypeKEK for sln >= 0xF000, else KeyTypeTEK.
func ClassifySLN(sln uint16) KeyType {
	if sln >= kekSLNFloor {
		return KeyTypeKEK
	}
	return KeyTypeTEK
}

// broadcastRSI is the 24-bit "no specific radio" destination/source address
// used throughout the Three-Wire path.
var broadcastRSI = [3]byte{0xFF, 0xFF, 0xFF}
