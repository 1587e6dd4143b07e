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

package hash

import "testing"

func TestInsertLookup(t *testing.T) {
	idx := New(1, 2, 16, Width4, nil)
	vals := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("a")}
	for i, v := range vals {
		if err := idx.Insert(int64(i), idx.Hash(v)); err != nil {
			t.Fatal(err)
		}
	}
	var found []int64
	idx.Lookup(idx.Hash([]byte("a")), func(row int64) bool {
		found = append(found, row)
		return true
	})
	if len(found) != 2 {
		t.Fatalf("expected 2 matches for 'a', got %v", found)
	}
}

func TestDeleteRemovesFromChain(t *testing.T) {
	idx := New(1, 2, 4, Width4, nil)
	h := idx.Hash([]byte("x"))
	if err := idx.Insert(0, h); err != nil {
		t.Fatal(err)
	}
	idx.Delete(h, 0)
	var found []int64
	idx.Lookup(h, func(row int64) bool {
		found = append(found, row)
		return true
	})
	if len(found) != 0 {
		t.Fatalf("expected empty chain after delete, got %v", found)
	}
}

func TestGrowBucketRepartitions(t *testing.T) {
	idx := New(1, 2, 4, Width4, nil)
	idx.HashRow = func(row int64) uint64 { return uint64(row) * 7 }
	for i := int64(0); i < 32; i++ {
		h := idx.HashRow(i)
		if err := idx.Insert(i, h); err != nil {
			t.Fatal(err)
		}
	}
	total := 0
	for b := 0; b < idx.NBucket(); b++ {
		idx.Lookup(uint64(b), func(row int64) bool {
			total++
			return true
		})
	}
	if total != 32 {
		t.Fatalf("expected all 32 rows across %d buckets, got %d", idx.NBucket(), total)
	}
}
