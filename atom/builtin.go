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

package atom

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// Built-in atom names: the fixed-width arithmetic set and string type,
// plus the bit/oid/uuid/blob atoms also registered at startup.
const (
	NameBit     = "bit"
	NameInt8    = "int8"
	NameInt16   = "int16"
	NameInt32   = "int32"
	NameInt64   = "int64"
	NameFloat32 = "float32"
	NameFloat64 = "float64"
	NameOID     = "oid"
	NameUUID    = "uuid"
	NameStr     = "str"
	NameBlob    = "blob"
)

// Builtins returns a new registry pre-populated with the fixed-width
// arithmetic atoms, oid, uuid, and the two variable-sized atoms (str,
// blob). The order of registration fixes their ids for the lifetime
// of the registry (0 == bit, 1 == int8, ...).
func Builtins() *Registry {
	r := NewRegistry()
	order := binary.LittleEndian

	mustRegister(r, Ops{
		Name: NameBit, Size: 1, Storage: StorageBit, Linear: true,
		NilBytes: []byte{0x80},
		Cmp: func(l, r []byte) int {
			ln, rn := l[0] == 0x80, r[0] == 0x80
			if ln || rn {
				if ln && rn {
					return 0
				}
				if ln {
					return -1
				}
				return 1
			}
			return int(l[0]) - int(r[0])
		},
		Hash:       fnv1a,
		FromString: boolFromString,
		ToString:   boolToString,
		Read:       passthroughRead(1),
		Write:      passthroughWrite,
	})

	for _, w := range []struct {
		name string
		size int
	}{{NameInt8, 1}, {NameInt16, 2}, {NameInt32, 4}, {NameInt64, 8}} {
		w := w
		mustRegister(r, Ops{
			Name: w.name, Size: w.size, Storage: storageForIntWidth(w.size), Linear: true,
			NilBytes:   minBytes(w.size, order),
			Cmp:        func(l, r []byte) int { return signedNilCmp(l, r, order, w.size) },
			Hash:       fnv1a,
			FromString: intFromString(w.size, order),
			ToString:   intToString(w.size, order),
			Read:       passthroughRead(w.size),
			Write:      passthroughWrite,
		})
	}

	mustRegister(r, Ops{
		Name: NameFloat32, Size: 4, Storage: StorageFloat32, Linear: true,
		NilBytes:   float32Bytes(float32(math.NaN()), order),
		Cmp:        func(l, r []byte) int { return floatNilCmp(l, r, order, 4) },
		Hash:       fnv1a,
		FromString: float32FromString(order),
		ToString:   float32ToString(order),
		Read:       passthroughRead(4),
		Write:      passthroughWrite,
	})
	mustRegister(r, Ops{
		Name: NameFloat64, Size: 8, Storage: StorageFloat64, Linear: true,
		NilBytes:   float64Bytes(math.NaN(), order),
		Cmp:        func(l, r []byte) int { return floatNilCmp(l, r, order, 8) },
		Hash:       fnv1a,
		FromString: float64FromString(order),
		ToString:   float64ToString(order),
		Read:       passthroughRead(8),
		Write:      passthroughWrite,
	})

	// oid reuses the int64 wire shape but its own nil convention
	// (also the minimum representable value) and id, since the
	// column descriptor distinguishes "is this an oid column" by
	// atom identity, not by storage shape.
	mustRegister(r, Ops{
		Name: NameOID, Size: 8, Storage: StorageInt64, Linear: true,
		NilBytes:   minBytes(8, order),
		Cmp:        func(l, r []byte) int { return signedNilCmp(l, r, order, 8) },
		Hash:       fnv1a,
		FromString: intFromString(8, order),
		ToString:   intToString(8, order),
		Read:       passthroughRead(8),
		Write:      passthroughWrite,
	})

	mustRegister(r, Ops{
		Name: NameUUID, Size: 16, Storage: StorageUUID, Linear: false,
		NilBytes:   make([]byte, 16),
		Cmp:        cmpBytesLinear,
		Hash:       fnv1a,
		FromString: uuidFromString,
		ToString:   uuidToString,
		Read:       passthroughRead(16),
		Write:      passthroughWrite,
	})

	mustRegister(r, Ops{
		Name: NameStr, Size: 0, Storage: StorageStringOffset, Linear: true, Variable: true,
		Cmp: func(l, r []byte) int {
			if len(l) != len(r) {
				if len(l) < len(r) {
					return -1
				}
				return 1
			}
			return cmpBytesLinear(l, r)
		},
		Hash:       fnv1a,
		FromString: func(s string) ([]byte, error) { return []byte(s), nil },
		ToString:   func(v []byte) string { return string(v) },
		Read:       variableRead,
		Write:      variableWrite,
		Put: func(h VarHeap, decoded string) (int64, error) {
			return h.Append([]byte(decoded))
		},
	})

	mustRegister(r, Ops{
		Name: NameBlob, Size: 0, Storage: StorageStringOffset, Linear: false, Variable: true,
		Cmp: func(l, r []byte) int {
			if len(l) != len(r) {
				if len(l) < len(r) {
					return -1
				}
				return 1
			}
			return cmpBytesLinear(l, r)
		},
		Hash:       fnv1a,
		FromString: func(s string) ([]byte, error) { return []byte(s), nil },
		ToString:   func(v []byte) string { return string(v) },
		Read:       variableRead,
		Write:      variableWrite,
		Put: func(h VarHeap, decoded string) (int64, error) {
			return h.Append([]byte(decoded))
		},
	})

	return r
}

func mustRegister(r *Registry, o Ops) {
	if _, err := r.Register(o); err != nil {
		panic(err)
	}
}

func storageForIntWidth(size int) Storage {
	switch size {
	case 1:
		return StorageInt8
	case 2:
		return StorageInt16
	case 4:
		return StorageInt32
	case 8:
		return StorageInt64
	}
	panic("unsupported integer width")
}

func minBytes(size int, order binary.ByteOrder) []byte {
	b := make([]byte, size)
	switch size {
	case 1:
		b[0] = byte(int8(math.MinInt8))
	case 2:
		order.PutUint16(b, uint16(int16(math.MinInt16)))
	case 4:
		order.PutUint32(b, uint32(int32(math.MinInt32)))
	case 8:
		order.PutUint64(b, uint64(int64(math.MinInt64)))
	}
	return b
}

func passthroughRead(size int) func([]byte, binary.ByteOrder) ([]byte, int, error) {
	return func(r []byte, _ binary.ByteOrder) ([]byte, int, error) {
		if len(r) < size {
			return nil, 0, fmt.Errorf("atom: short read, need %d have %d", size, len(r))
		}
		out := make([]byte, size)
		copy(out, r[:size])
		return out, size, nil
	}
}

func passthroughWrite(w []byte, _ binary.ByteOrder, v []byte) []byte {
	return append(w, v...)
}

func variableRead(r []byte, order binary.ByteOrder) ([]byte, int, error) {
	if len(r) < 4 {
		return nil, 0, fmt.Errorf("atom: short variable-length prefix")
	}
	n := int(order.Uint32(r))
	if len(r) < 4+n {
		return nil, 0, fmt.Errorf("atom: short variable-length body")
	}
	out := make([]byte, n)
	copy(out, r[4:4+n])
	return out, 4 + n, nil
}

func variableWrite(w []byte, order binary.ByteOrder, v []byte) []byte {
	var lenbuf [4]byte
	order.PutUint32(lenbuf[:], uint32(len(v)))
	w = append(w, lenbuf[:]...)
	return append(w, v...)
}

func boolFromString(s string) ([]byte, error) {
	switch s {
	case "true", "1", "t":
		return []byte{1}, nil
	case "false", "0", "f":
		return []byte{0}, nil
	case "", "nil", "null":
		return []byte{0x80}, nil
	}
	return nil, fmt.Errorf("atom: bad bool literal %q", s)
}

func boolToString(v []byte) string {
	if v[0] == 0x80 {
		return ""
	}
	return strconv.FormatBool(v[0] != 0)
}

func intFromString(size int, order binary.ByteOrder) func(string) ([]byte, error) {
	return func(s string) ([]byte, error) {
		if s == "" || s == "nil" || s == "null" {
			return minBytes(size, order), nil
		}
		n, err := strconv.ParseInt(s, 10, size*8)
		if err != nil {
			return nil, err
		}
		b := make([]byte, size)
		switch size {
		case 1:
			b[0] = byte(int8(n))
		case 2:
			order.PutUint16(b, uint16(int16(n)))
		case 4:
			order.PutUint32(b, uint32(int32(n)))
		case 8:
			order.PutUint64(b, uint64(n))
		}
		return b, nil
	}
}

func intToString(size int, order binary.ByteOrder) func([]byte) string {
	return func(v []byte) string {
		n := readSignedSafe(v, order, size)
		if n == minForWidth(size) {
			return ""
		}
		return strconv.FormatInt(n, 10)
	}
}

func float32Bytes(f float32, order binary.ByteOrder) []byte {
	b := make([]byte, 4)
	order.PutUint32(b, math.Float32bits(f))
	return b
}

func float64Bytes(f float64, order binary.ByteOrder) []byte {
	b := make([]byte, 8)
	order.PutUint64(b, math.Float64bits(f))
	return b
}

// floatNilCmp treats NaN as the in-band nil representation: NaN
// sorts before every non-NaN value, and NaN == NaN for this purpose.
func floatNilCmp(l, r []byte, order binary.ByteOrder, size int) int {
	var lv, rv float64
	if size == 4 {
		lv = float64(math.Float32frombits(order.Uint32(l)))
		rv = float64(math.Float32frombits(order.Uint32(r)))
	} else {
		lv = math.Float64frombits(order.Uint64(l))
		rv = math.Float64frombits(order.Uint64(r))
	}
	lnan, rnan := math.IsNaN(lv), math.IsNaN(rv)
	if lnan && rnan {
		return 0
	}
	if lnan {
		return -1
	}
	if rnan {
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

func float32FromString(order binary.ByteOrder) func(string) ([]byte, error) {
	return func(s string) ([]byte, error) {
		if s == "" || s == "nil" || s == "null" {
			return float32Bytes(float32(math.NaN()), order), nil
		}
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return float32Bytes(float32(f), order), nil
	}
}

func float32ToString(order binary.ByteOrder) func([]byte) string {
	return func(v []byte) string {
		f := math.Float32frombits(order.Uint32(v))
		if math.IsNaN(float64(f)) {
			return ""
		}
		return strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
}

func float64FromString(order binary.ByteOrder) func(string) ([]byte, error) {
	return func(s string) ([]byte, error) {
		if s == "" || s == "nil" || s == "null" {
			return float64Bytes(math.NaN(), order), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return float64Bytes(f, order), nil
	}
}

func float64ToString(order binary.ByteOrder) func([]byte) string {
	return func(v []byte) string {
		f := math.Float64frombits(order.Uint64(v))
		if math.IsNaN(f) {
			return ""
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func uuidFromString(s string) ([]byte, error) {
	if s == "" || s == "nil" || s == "null" {
		return make([]byte, 16), nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("atom: bad uuid literal %q: %w", s, err)
	}
	return id[:], nil
}

func uuidToString(v []byte) string {
	allZero := true
	for _, b := range v {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return ""
	}
	id, err := uuid.FromBytes(v)
	if err != nil {
		return fmt.Sprintf("%x", v)
	}
	return id.String()
}
