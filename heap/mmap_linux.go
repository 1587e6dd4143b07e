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

//go:build linux

package heap

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const pageSize = 4096

// allocMMapLocked creates (or truncates) the heap's backing file to
// size bytes and maps it according to target (mmap-shared maps
// MAP_SHARED so writes land directly in the page cache; mmap-private
// maps MAP_PRIVATE so dirty pages are copy-on-write anonymous memory).
func (h *Heap) allocMMapLocked(size int64, target Storage) error {
	f, err := os.OpenFile(h.path(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("heap: creating %s: %w", h.path(), err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return fmt.Errorf("heap: truncating %s: %w", h.path(), err)
	}
	flag := unix.MAP_SHARED
	if target == StorageMMapPrivate {
		flag = unix.MAP_PRIVATE
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, flag)
	if err != nil {
		f.Close()
		return fmt.Errorf("heap: mmap %s: %w", h.path(), err)
	}
	h.file = f
	h.base = mem
	h.storage = target
	h.newstorage = target
	return nil
}

// extendMMapLocked grows a mapped heap. It first attempts an in-place
// Mremap (which on Linux can extend a mapping without copying page
// contents when the address space permits it); if that fails it
// truncates the file, unmaps, and remaps at a (possibly new) address.
// After the point where the new mapping succeeds, failure is no
// longer possible.
func (h *Heap) extendMMapLocked(newSize int64, maySharePages bool) error {
	if err := h.file.Truncate(newSize); err != nil {
		return fmt.Errorf("heap: extending %s: %w", h.path(), err)
	}
	mem, err := unix.Mremap(h.base, int(newSize), unix.MREMAP_MAYMOVE)
	if err != nil {
		// in-place growth failed; unmap and remap fresh.
		flag := unix.MAP_SHARED
		if h.storage == StorageMMapPrivate {
			flag = unix.MAP_PRIVATE
		}
		if uerr := unix.Munmap(h.base); uerr != nil {
			return fmt.Errorf("heap: unmap during extend: %w", uerr)
		}
		mem, err = unix.Mmap(int(h.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, flag)
		if err != nil {
			return fmt.Errorf("heap: remap %s: %w", h.path(), err)
		}
	}
	h.base = mem
	h.size = newSize
	return nil
}

func (h *Heap) shrinkMMapLocked(newSize int64) error {
	if err := unix.Munmap(h.base); err != nil {
		return fmt.Errorf("heap: unmap during shrink: %w", err)
	}
	if err := h.file.Truncate(newSize); err != nil {
		return fmt.Errorf("heap: truncating %s: %w", h.path(), err)
	}
	flag := unix.MAP_SHARED
	if h.storage == StorageMMapPrivate {
		flag = unix.MAP_PRIVATE
	}
	mem, err := unix.Mmap(int(h.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, flag)
	if err != nil {
		return fmt.Errorf("heap: remap %s after shrink: %w", h.path(), err)
	}
	h.base = mem
	h.size = newSize
	if h.free > newSize {
		h.free = newSize
	}
	return nil
}

// syncLocked flushes dirty pages of a shared mapping back to the
// file with msync: mmap-shared heaps write directly to the OS page
// cache, so this is what makes those writes durable.
func (h *Heap) syncLocked() error {
	if h.base == nil {
		return nil
	}
	if err := unix.Msync(h.base, unix.MS_SYNC); err != nil {
		return fmt.Errorf("heap: msync %s: %w", h.path(), err)
	}
	h.dirty = false
	return nil
}

func (h *Heap) unmapLocked() error {
	if h.base == nil {
		return nil
	}
	err := unix.Munmap(h.base)
	if h.file != nil {
		h.file.Close()
		h.file = nil
	}
	return err
}

// spillToMMapLocked converts a mem-storage heap that has grown past
// the mmap threshold: its current contents are written out to the
// farm file and then mapped, matching gdk_heap.c's "exceeds_swap"
// path.
func (h *Heap) spillToMMapLocked(newSize int64) error {
	if h.filename == "" {
		// no backing file possible; keep growing in mem regardless
		// of the threshold (matches an in-memory-only pool/farm).
		grown := make([]byte, newSize)
		copy(grown, h.base)
		h.base = grown
		h.size = newSize
		return nil
	}
	f, err := os.OpenFile(h.path(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("heap: spilling %s: %w", h.path(), err)
	}
	if _, err := f.Write(h.base[:h.free]); err != nil {
		f.Close()
		return err
	}
	if err := f.Truncate(newSize); err != nil {
		f.Close()
		return err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("heap: mmap after spill %s: %w", h.path(), err)
	}
	oldSize := h.size
	h.file = f
	h.base = mem
	h.size = newSize
	h.storage = StorageMMapShared
	h.newstorage = StorageMMapShared
	atomic.AddInt64(&curMemSize, -oldSize)
	return nil
}
