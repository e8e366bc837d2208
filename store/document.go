package store

import "github.com/riftdb/rift/value"

// Document is the §3 immutable record. A tombstone is represented by
// Deleted=true with Value left as value.Null().
type Document struct {
	ID           value.DocumentID
	CreationTime float64 // the inserting transaction's snapshot ts; inserts from the same snapshot share it
	Value        value.Value
	Deleted      bool
}

// Write is one document's change within a committed batch: (id, old?, new?),
// matching the §3 write log entry shape.
type Write struct {
	ID  value.DocumentID
	Old *Document
	New *Document
}
