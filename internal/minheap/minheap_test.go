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

package minheap

import (
	"math/rand"
	"testing"
)

func TestPushPop(t *testing.T) {
	var x []int
	less := func(a, b int) bool { return a < b }
	in := []int{5, 3, 8, 1, 9, 2, 7}
	for _, v := range in {
		Push(&x, v, less)
	}
	var out []int
	for len(x) > 0 {
		out = append(out, Pop(&x, less))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1] > out[i] {
			t.Fatalf("not sorted: %v", out)
		}
	}
	if len(out) != len(in) {
		t.Fatalf("lost elements: got %d want %d", len(out), len(in))
	}
}

func TestInit(t *testing.T) {
	less := func(a, b int) bool { return a < b }
	r := rand.New(rand.NewSource(1))
	x := make([]int, 100)
	for i := range x {
		x[i] = r.Intn(1000)
	}
	Init(x, less)
	min := x[0]
	for _, v := range x {
		if v < min {
			t.Fatalf("heap property violated: %d < %d at top", v, min)
		}
	}
}
