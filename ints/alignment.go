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

// Package ints holds the small integer helpers the heap and pool
// packages share: page-size rounding for mmap sizing and the
// clamp/fill helpers used for bookkeeping and key generation.
package ints

// IsAligned reports whether v is an integer multiple of alignment.
func IsAligned(v, alignment uint) bool {
	return v%alignment == 0
}

// AlignDown rounds v down to the nearest multiple of alignment.
func AlignDown(v, alignment uint) uint {
	return (v / alignment) * alignment
}

// AlignUp rounds v up to the nearest multiple of alignment; heap uses
// this to round a requested mmap size up to a whole number of pages.
func AlignUp(v, alignment uint) uint {
	return ((v + alignment - 1) / alignment) * alignment
}
