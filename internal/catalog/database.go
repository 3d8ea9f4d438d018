// Package catalog holds the Database namespace object: a named registry of
// Bloom filters, one level below the controller in the object hierarchy.
package catalog

import (
	"fmt"

	"github.com/apkaspell/bdb/internal/bloom"
	"github.com/apkaspell/bdb/internal/registry"
	"github.com/apkaspell/bdb/internal/tlv"
)

// Database is a Bloom-filter namespace identified by a single byte id.
type Database struct {
	ID         uint8
	BFRegistry *registry.Registry[*bloom.Structure]
}

// New creates an empty database with the given id.
func New(id uint8) *Database {
	return &Database{ID: id, BFRegistry: registry.New[*bloom.Structure]()}
}

// Encode produces this database's TLV encoding: just its id. Its Bloom
// filters are encoded separately, as siblings, by the controller (see
// ctl.Serialize) — the BloomFilterStructure carries its own dbid so the
// relationship survives without nesting.
func (d *Database) Encode() *tlv.Encoder {
	enc := tlv.NewEncoder(tlv.TypeDatabase)
	enc.PutUint8(d.ID)
	return enc
}

// Decode reconstructs a Database from a previously-decoded Database TLV.
func Decode(d tlv.Decoded) (*Database, error) {
	if d.Type != tlv.TypeDatabase {
		return nil, fmt.Errorf("catalog: decode: expected Database TLV, got type %d", d.Type)
	}
	id, err := tlv.DecodeUint8(d.Val)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode id: %w", err)
	}
	return New(id), nil
}
