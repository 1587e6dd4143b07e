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

import "testing"

func TestInt32NilIsMin(t *testing.T) {
	r := Builtins()
	id := r.ByName(NameInt32)
	ops := r.Lookup(id)
	if ops == nil {
		t.Fatal("int32 not registered")
	}
	nilv, err := ops.FromString("")
	if err != nil {
		t.Fatal(err)
	}
	if !ops.IsNil(nilv) {
		t.Fatalf("expected nil encoding, got %v", nilv)
	}
	five, _ := ops.FromString("5")
	if ops.Cmp(nilv, five) >= 0 {
		t.Fatalf("nil should sort before any non-nil value")
	}
}

func TestFloat64NaNIsNil(t *testing.T) {
	r := Builtins()
	ops := r.Lookup(r.ByName(NameFloat64))
	nilv, _ := ops.FromString("")
	one, _ := ops.FromString("1.0")
	if ops.Cmp(nilv, nilv) != 0 {
		t.Fatal("NaN should compare equal to itself as nil")
	}
	if ops.Cmp(nilv, one) >= 0 {
		t.Fatal("NaN/nil should sort first")
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	r := Builtins()
	ops := r.Lookup(r.ByName(NameUUID))
	b, err := ops.FromString("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(b))
	}
	s := ops.ToString(b)
	b2, err := ops.FromString(s)
	if err != nil {
		t.Fatal(err)
	}
	if ops.Cmp(b, b2) != 0 {
		t.Fatal("round trip mismatch")
	}
}

func TestUnknownAtomForwardReference(t *testing.T) {
	r := NewRegistry()
	fwd := r.ByName("geom")
	if fwd >= 0 {
		t.Fatalf("expected negative forward id, got %d", fwd)
	}
	if r.Lookup(fwd) != nil {
		t.Fatal("expected nil for unresolved forward reference")
	}
	if _, err := r.Register(Ops{Name: "geom", Size: 8, Storage: StorageInt64, Linear: true, NilBytes: make([]byte, 8), Cmp: cmpBytesLinear, Hash: fnv1a}); err != nil {
		t.Fatal(err)
	}
	if r.Lookup(fwd) == nil {
		t.Fatal("expected forward reference to resolve after registration")
	}
}

func TestStringAtomVariableFlag(t *testing.T) {
	r := Builtins()
	ops := r.Lookup(r.ByName(NameStr))
	if !ops.Variable {
		t.Fatal("str atom must be Variable")
	}
	if ops.Size != 0 {
		t.Fatal("variable atoms carry no fixed slot size")
	}
}
