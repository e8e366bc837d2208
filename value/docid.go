package value

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// DocumentID is the §3 "128-bit opaque identifier prefixed by a 16-bit
// table number". The remaining 112 bits are taken from a random UUIDv4,
// which is how google/uuid (already a dependency for other components in
// the pack) is put to use here.
type DocumentID [16]byte

// NewDocumentID allocates a fresh id for the given table number.
func NewDocumentID(tableNumber uint16) DocumentID {
	var id DocumentID
	binary.BigEndian.PutUint16(id[:2], tableNumber)
	u := uuid.New()
	copy(id[2:], u[2:16])
	return id
}

// TableNumber extracts the 16-bit table number prefix.
func (id DocumentID) TableNumber() uint16 {
	return binary.BigEndian.Uint16(id[:2])
}

func (id DocumentID) String() string { return hex.EncodeToString(id[:]) }

// ParseDocumentID parses the hex form produced by String.
func ParseDocumentID(s string) (DocumentID, bool) {
	var id DocumentID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return DocumentID{}, false
	}
	copy(id[:], b)
	return id, true
}

// Less gives DocumentID a total order, used as the final tie-breaker
// appended to every index key per §3 ("finally append the document id so
// every entry is unique").
func (id DocumentID) Less(other DocumentID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// AsValue lets a DocumentID participate in index key encoding as a Bytes
// value, so the document id suffix uses the same ordered byte encoding as
// every other index key component.
func (id DocumentID) AsValue() Value { return Bytes(id[:]) }
