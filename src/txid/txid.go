package txid

import (
	"encoding/binary"
	"fmt"

	"github.com/dagwatch/dagwatch/src/common"
)

// IDLength is the length in bytes of a raw vertex identifier: a 35 byte
// transaction id region followed by one flag byte.
const IDLength = 36

// flagMask selects the type flag carried in the most significant bit of the
// first identifier byte.
const flagMask = 0x80

// Slot is the ledger's logical time unit.
type Slot uint32

// String ...
func (s Slot) String() string {
	return fmt.Sprintf("%d", uint32(s))
}

// SlotOf returns the slot encoded in the first four bytes of a raw
// identifier, with the type flag cleared.
func SlotOf(id []byte) (Slot, error) {
	if len(id) != IDLength {
		return 0, newMalformedIDError(common.EncodeToString(id), len(id), nil)
	}

	var b [4]byte
	copy(b[:], id[:4])
	b[0] &^= flagMask

	return Slot(binary.BigEndian.Uint32(b[:])), nil
}

// Timestamp returns the full ledger time of a raw identifier: the first eight
// bytes read big-endian, type flag cleared. The slot occupies the high 32
// bits.
func Timestamp(id []byte) (uint64, error) {
	if len(id) != IDLength {
		return 0, newMalformedIDError(common.EncodeToString(id), len(id), nil)
	}

	var b [8]byte
	copy(b[:], id[:8])
	b[0] &^= flagMask

	return binary.BigEndian.Uint64(b[:]), nil
}

// HasTypeFlag reports whether the type flag bit of a raw identifier is set.
// It returns false for an empty identifier.
func HasTypeFlag(id []byte) bool {
	return len(id) > 0 && id[0]&flagMask != 0
}

// Decode converts the hex representation of an identifier, with or without a
// 0x prefix, into its raw bytes and checks its length.
func Decode(hexID string) ([]byte, error) {
	raw, err := common.DecodeFromString(hexID)
	if err != nil {
		return nil, newMalformedIDError(hexID, -1, err)
	}

	if len(raw) != IDLength {
		return nil, newMalformedIDError(hexID, len(raw), nil)
	}

	return raw, nil
}

// ParseSlot decodes a hex identifier and returns its slot.
func ParseSlot(hexID string) (Slot, error) {
	raw, err := Decode(hexID)
	if err != nil {
		return 0, err
	}

	return SlotOf(raw)
}
