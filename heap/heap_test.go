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

package heap

import (
	"bytes"
	"testing"
)

func TestMemAllocAndGrow(t *testing.T) {
	cfg := DefaultConfig()
	h := New(t.TempDir(), "t.tail", cfg)
	if err := h.Alloc(4, 8, false); err != nil {
		t.Fatal(err)
	}
	if h.Storage() != StorageMem {
		t.Fatalf("expected mem storage for small heap, got %v", h.Storage())
	}
	copy(h.Cap(), []byte{1, 2, 3, 4})
	if err := h.SetUsed(4); err != nil {
		t.Fatal(err)
	}
	if err := h.Extend(64, false); err != nil {
		t.Fatal(err)
	}
	if got := h.Bytes(); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("extend lost data: %v", got)
	}
	if h.Size() != 64 {
		t.Fatalf("expected size 64, got %d", h.Size())
	}
}

func TestSaveLoadMem(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	h := New(dir, "t.tail", cfg)
	if err := h.Alloc(4, 8, false); err != nil {
		t.Fatal(err)
	}
	copy(h.Cap(), []byte{9, 8, 7, 6})
	if err := h.SetUsed(4); err != nil {
		t.Fatal(err)
	}
	if err := h.Save(""); err != nil {
		t.Fatal(err)
	}

	h2 := New(dir, "t.tail", cfg)
	if err := h2.Load(4, ""); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(h2.Bytes(), []byte{9, 8, 7, 6}) {
		t.Fatalf("round trip mismatch: %v", h2.Bytes())
	}
}

func TestSaveLoadCompressed(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	h := New(dir, "t.tail", cfg)
	payload := bytes.Repeat([]byte{0xAB}, 256)
	if err := h.Alloc(int64(len(payload)), 1, false); err != nil {
		t.Fatal(err)
	}
	copy(h.Cap(), payload)
	if err := h.SetUsed(int64(len(payload))); err != nil {
		t.Fatal(err)
	}
	if err := h.Save("s2"); err != nil {
		t.Fatal(err)
	}
	h2 := New(dir, "t.tail", cfg)
	if err := h2.Load(int64(len(payload)), "s2"); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(h2.Bytes(), payload) {
		t.Fatal("compressed round trip mismatch")
	}
}

func TestDecrefDeletesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	h := New(dir, "t.tail", cfg)
	if err := h.Alloc(4, 8, false); err != nil {
		t.Fatal(err)
	}
	if err := h.SetUsed(4); err != nil {
		t.Fatal(err)
	}
	if err := h.Save(""); err != nil {
		t.Fatal(err)
	}
	if n, err := h.Decref(true); err != nil || n != 0 {
		t.Fatalf("decref: n=%d err=%v", n, err)
	}
	if _, err := h.Decref(false); err == nil {
		t.Fatal("expected error decref-ing below zero")
	}
}
