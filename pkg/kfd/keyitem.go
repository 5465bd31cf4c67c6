package kfd

// KeyItem is the semantic description of one traffic or key-encryption key
// to load or erase.
type KeyItem struct {
	KeysetID    uint16
	SLN         uint16 // Storage Location Number (CKR)
	KeyID       uint16
	AlgorithmID AlgorithmID
	Key         []byte
	Erase       bool
}

// IsKEK reports whether this item's SLN falls in the key-encryption-key range.
func (k KeyItem) IsKEK() bool { return ClassifySLN(k.SLN) == KeyTypeKEK }

// Validate checks the key material length against AlgorithmID's expected
// length, when that algorithm is one this package knows about (spec.md §6:
// an unlisted algorithm is not checked).
func (k KeyItem) Validate() error {
	if k.Erase {
		return nil
	}
	expected, known := ExpectedKeyLength(k.AlgorithmID)
	if !known {
		return nil
	}
	if len(k.Key) != expected {
		return &Error{Kind: ErrInvalidKeyLength}
	}
	return nil
}

// KeyStatus is the per-key outcome synthesized on a successful rekey
// acknowledgment.
type KeyStatus struct {
	KeyID       uint16
	AlgorithmID AlgorithmID
	Status      OperationStatus
}
