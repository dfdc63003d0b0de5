// Package rowdef defines the fixed row schema shared by every Partition
// Store in a split table: how large a row is, how long its primary key
// is, and the byte orders used to compare keys and whole rows.
package rowdef

import "bytes"

// KeyOrder totally orders primary keys (byte strings). Less reports
// whether a sorts strictly before b.
type KeyOrder func(a, b []byte) bool

// RowDef is the fixed schema shared by all Partition Stores that make up
// one split table.
type RowDef struct {
	// RowSize is the total serialized size of one row, in bytes.
	RowSize int

	// KeyLength is the length, in bytes, of the primary key prefix of a
	// row.
	KeyLength int

	// KeyOrder is the primary order over keys.
	KeyOrder KeyOrder
}

// New builds a RowDef with the lexicographic (bytes.Compare) key order,
// the natural default for fixed-width binary keys.
func New(rowSize, keyLength int) RowDef {
	return RowDef{
		RowSize:   rowSize,
		KeyLength: keyLength,
		KeyOrder:  func(a, b []byte) bool { return bytes.Compare(a, b) < 0 },
	}
}

// Key extracts the primary key prefix from a serialized row.
func (r RowDef) Key(row []byte) []byte {
	return row[:r.KeyLength]
}

// EntryLess is the derived total row order: rows compare by primary key
// first, then by their full byte content, so two distinct rows with equal
// keys (which invariant (1) forbids across partitions, but which a single
// Partition Store may still need to order internally) are never
// considered equal.
func (r RowDef) EntryLess(a, b []byte) bool {
	ka, kb := r.Key(a), r.Key(b)
	if r.KeyOrder(ka, kb) {
		return true
	}
	if r.KeyOrder(kb, ka) {
		return false
	}
	return bytes.Compare(a, b) < 0
}
