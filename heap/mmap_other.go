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

//go:build !linux

package heap

import "fmt"

const pageSize = 4096

// Non-linux builds do not implement the mmap storage modes; heaps on
// these platforms are restricted to StorageMem.

func (h *Heap) allocMMapLocked(size int64, target Storage) error {
	return fmt.Errorf("heap: mmap storage not supported on this platform")
}

func (h *Heap) extendMMapLocked(newSize int64, maySharePages bool) error {
	return fmt.Errorf("heap: mmap storage not supported on this platform")
}

func (h *Heap) shrinkMMapLocked(newSize int64) error {
	return fmt.Errorf("heap: mmap storage not supported on this platform")
}

func (h *Heap) unmapLocked() error {
	return nil
}

func (h *Heap) syncLocked() error {
	return nil
}

func (h *Heap) spillToMMapLocked(newSize int64) error {
	grown := make([]byte, newSize)
	copy(grown, h.base)
	h.base = grown
	h.size = newSize
	return nil
}
