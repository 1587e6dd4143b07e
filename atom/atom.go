// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package atom implements the atom type registry: the table of
// fixed-width and variable-width value types ("atoms") that columns
// are built from, along with their comparison, hashing and binary
// codec operations.
//
// The dispatch table is an indexed array (atom id -> Ops), not a
// virtual-dispatch interface, so that lookups from the hot column-ops
// path stay a slice index rather than a vtable call.
package atom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// ID identifies an atom type. Built-in atoms have small non-negative
// ids assigned at registry construction time. Atoms referenced by a
// loaded column before their implementation registers itself are
// assigned a negative id in the "unknown atom" table (see
// Registry.Unknown) and resolved once the real registration happens.
type ID int32

// Storage names the underlying fixed-width representation of an atom.
type Storage int

const (
	StorageBit Storage = iota
	StorageInt8
	StorageInt16
	StorageInt32
	StorageInt64
	StorageInt128
	StorageFloat32
	StorageFloat64
	StorageUUID
	StorageStringOffset // slot holds an offset into a variable heap
)

func (s Storage) String() string {
	switch s {
	case StorageBit:
		return "bit"
	case StorageInt8:
		return "int8"
	case StorageInt16:
		return "int16"
	case StorageInt32:
		return "int32"
	case StorageInt64:
		return "int64"
	case StorageInt128:
		return "int128"
	case StorageFloat32:
		return "float32"
	case StorageFloat64:
		return "float64"
	case StorageUUID:
		return "uuid"
	case StorageStringOffset:
		return "stroffset"
	default:
		return "unknown"
	}
}

// VarHeap is the narrow interface into a column's variable heap that
// a variable-sized atom's Put operation needs. It is satisfied by
// *column.VarHeap without atom importing the heap/column packages, which
// would otherwise create an import cycle (atom is a leaf package).
type VarHeap interface {
	// Append copies data onto the heap and returns its offset.
	Append(data []byte) (offset int64, err error)
	// At returns the bytes previously stored at offset by Append.
	At(offset int64) ([]byte, error)
}

// Ops is the operation vector for one atom type.
type Ops struct {
	ID      ID
	Name    string
	Size    int // bytes per slot; 0 for void, 0 also for variable-sized (slots hold offsets)
	Storage Storage
	Linear  bool // values are totally ordered
	// Variable marks an atom whose slots store heap offsets rather
	// than inline values (e.g. str, blob).
	Variable bool

	// NilBytes is the canonical nil bit pattern for fixed-width atoms
	// (len(NilBytes) == Size). Unused for Variable atoms, which encode
	// "nil" as a sentinel offset instead (see column/varheap.go).
	NilBytes []byte

	// Cmp compares two fixed-width slot encodings. nil sorts before
	// any non-nil value; nil == nil. For IEEE floats, NaN is the
	// substitute in-band representation of nil and also sorts first.
	Cmp func(l, r []byte) int
	// Hash computes a bucket-hash of a slot's bytes.
	Hash func(v []byte) uint64
	// FromString / ToString implement the atom's textual representation.
	FromString func(s string) ([]byte, error)
	ToString   func(v []byte) string
	// Read / Write implement the atom's on-disk binary representation.
	Read  func(r []byte, order binary.ByteOrder) ([]byte, int, error)
	Write func(w []byte, order binary.ByteOrder, v []byte) []byte

	// Fix / Unfix are set only for atoms whose values name other
	// columns (e.g. a column-of-column-ids atom): Fix increments the
	// named column's logical refcount, Unfix decrements it. Most
	// atoms leave these nil.
	Fix   func(v []byte, incref func(id int64))
	Unfix func(v []byte, decref func(id int64))

	// Put is set only for Variable atoms: it copies a decoded value
	// onto a heap and returns its offset.
	Put func(h VarHeap, decoded string) (offset int64, err error)
}

// IsNil reports whether v is the canonical nil encoding for a
// fixed-width atom.
func (o *Ops) IsNil(v []byte) bool {
	if o.Variable {
		return false // variable atoms use a sentinel offset, tested at the column level
	}
	for i := range v {
		if v[i] != o.NilBytes[i] {
			return false
		}
	}
	return true
}

// Registry is the process-wide table mapping atom id to its Ops.
// Registration is serialized by a single lock, matching the "hot
// read path never needs to lock" design of the original.
type Registry struct {
	mu       sync.Mutex
	byID     []*Ops // dense, index == ID
	byName   map[string]ID
	unknown  map[string]ID // forward-declared atoms, negative ids
	resolved map[ID]ID     // negative forward id -> real id, once registered
	nextNeg  ID
}

// ErrRegistryFull is returned when the atom table would need to grow
// past a sane static bound; this is a hard configuration error, not a
// runtime condition callers should retry.
var ErrRegistryFull = errors.New("atom: registry full")

const maxAtoms = 1 << 16

// NewRegistry returns an empty registry (no built-ins registered).
// Most callers want Builtins, which pre-populates the fixed-width
// arithmetic set and the string atom.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]ID),
		unknown:  make(map[string]ID),
		resolved: make(map[ID]ID),
		nextNeg:  -1,
	}
}

// Register adds an atom type to the registry and returns its id.
// Registration is serialized; lookups are not.
func (r *Registry) Register(o Ops) (ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[o.Name]; exists {
		return 0, fmt.Errorf("atom: %q already registered", o.Name)
	}
	if len(r.byID) >= maxAtoms {
		return 0, ErrRegistryFull
	}
	id := ID(len(r.byID))
	o.ID = id
	cp := o
	r.byID = append(r.byID, &cp)
	r.byName[o.Name] = id
	if neg, ok := r.unknown[o.Name]; ok {
		// a column referencing this atom by name loaded before we
		// registered; remember the resolution so Resolve can map
		// the old negative id forward.
		r.resolved[neg] = id
		delete(r.unknown, o.Name)
	}
	return id, nil
}

// Lookup returns the Ops for id, or nil if id is out of range or
// still an unresolved forward reference.
func (r *Registry) Lookup(id ID) *Ops {
	if id < 0 {
		r.mu.Lock()
		resolved, ok := r.resolved[id]
		r.mu.Unlock()
		if !ok {
			return nil
		}
		id = resolved
	}
	if int(id) >= len(r.byID) {
		return nil
	}
	return r.byID[id]
}

// ByName resolves an atom by name, registering a forward (negative)
// id if the atom has not yet been registered. This supports loading a
// column whose atom module registers itself later in process startup.
func (r *Registry) ByName(name string) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		return id
	}
	if id, ok := r.unknown[name]; ok {
		return id
	}
	id := r.nextNeg
	r.nextNeg--
	r.unknown[name] = id
	return id
}

func cmpBytesLinear(l, r []byte) int {
	for i := range l {
		if l[i] != r[i] {
			if l[i] < r[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func fnv1a(v []byte) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211
	h := uint64(offset)
	for _, b := range v {
		h ^= uint64(b)
		h *= prime
	}
	return h
}

// minForWidth returns the minimum representable signed value for a
// two's-complement integer of the given byte width: the nil sentinel
// for every signed integer atom (spec §3.1).
func minForWidth(size int) int64 {
	switch size {
	case 1:
		return math.MinInt8
	case 2:
		return math.MinInt16
	case 4:
		return math.MinInt32
	case 8:
		return math.MinInt64
	}
	panic("unsupported integer width")
}

func signedNilCmp(l, r []byte, order binary.ByteOrder, size int) int {
	lv := readSignedSafe(l, order, size)
	rv := readSignedSafe(r, order, size)
	nilv := minForWidth(size)
	lnil := lv == nilv
	rnil := rv == nilv
	if lnil && rnil {
		return 0
	}
	if lnil {
		return -1
	}
	if rnil {
		return 1
	}
	switch {
	case lv < rv:
		return -1
	case lv > rv:
		return 1
	default:
		return 0
	}
}

func readSignedSafe(v []byte, order binary.ByteOrder, size int) int64 {
	switch size {
	case 1:
		return int64(int8(v[0]))
	case 2:
		return int64(int16(order.Uint16(v)))
	case 4:
		return int64(int32(order.Uint32(v)))
	case 8:
		return int64(order.Uint64(v))
	}
	panic("unsupported integer width")
}
