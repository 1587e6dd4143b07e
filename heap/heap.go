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

// Package heap implements the typed byte-region storage that backs
// every column's slot array and variable heap: a region that is
// either a plain Go-allocated buffer ("mem"), a shared
// memory-mapped file ("mmap-shared", where the OS page cache is
// authoritative), or a private copy-on-write mapping ("mmap-private",
// where dirty pages live in anonymous memory until explicitly saved).
package heap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/monetkit/gdk/ints"
)

// Storage names the representation a Heap's bytes currently live in.
type Storage int

const (
	StorageMem Storage = iota
	StorageMMapShared
	StorageMMapPrivate
)

func (s Storage) String() string {
	switch s {
	case StorageMem:
		return "mem"
	case StorageMMapShared:
		return "mmap-shared"
	case StorageMMapPrivate:
		return "mmap-private"
	default:
		return "unknown"
	}
}

// Config carries the process-wide knobs that decide which storage
// mode a new or growing heap should use.
type Config struct {
	// MMapMinSizePersistent/Transient: byte threshold above which a
	// heap prefers mmap over a plain in-memory buffer.
	MMapMinSizePersistent int64
	MMapMinSizeTransient  int64
	// MemMaxSize: process-wide VM budget; once the sum of all mem
	// heaps' sizes would exceed this, new allocations prefer mmap.
	MemMaxSize int64
}

// DefaultConfig mirrors GDK's defaults (gdk_heap.c): modest thresholds
// suitable for a single test process, not a production deployment.
func DefaultConfig() Config {
	return Config{
		MMapMinSizePersistent: 1 << 18, // 256KiB
		MMapMinSizeTransient:  1 << 20, // 1MiB
		MemMaxSize:            1 << 30, // 1GiB
	}
}

var (
	curMemSize int64 // process-wide mem-storage usage; see Config.MemMaxSize
)

// CurrentMemSize returns the number of bytes currently held across
// all StorageMem heaps in this process.
func CurrentMemSize() int64 { return atomic.LoadInt64(&curMemSize) }

// Heap is a named, reference-counted byte region.
type Heap struct {
	mu sync.Mutex

	base []byte // current view of the data; callers must re-derive pointers after Extend/Shrink

	size int64 // reserved capacity
	free int64 // bytes in use

	farmDir string // directory this heap's file (if any) lives under
	storage Storage
	newstorage Storage
	dirty      bool
	parentID   int64 // owning column id; 0 == orphan
	filename   string
	removeOnZero bool

	refcount int32

	file *os.File // open only while storage != StorageMem
	cfg  Config
}

// ErrClosed is returned by operations on a Heap whose refcount has
// already dropped to zero.
var ErrClosed = errors.New("heap: use of heap after final decref")

// New creates an unallocated heap descriptor. filename is the
// basename within farmDir; it may be empty for a heap that will never
// be persisted.
func New(farmDir, filename string, cfg Config) *Heap {
	return &Heap{
		farmDir:  farmDir,
		filename: filename,
		storage:  StorageMem,
		newstorage: StorageMem,
		refcount: 1,
		cfg:      cfg,
	}
}

// Storage, Size, Free, Dirty, ParentID report the current descriptor
// state.
func (h *Heap) Storage() Storage   { h.mu.Lock(); defer h.mu.Unlock(); return h.storage }
func (h *Heap) NewStorage() Storage { h.mu.Lock(); defer h.mu.Unlock(); return h.newstorage }
func (h *Heap) Size() int64        { h.mu.Lock(); defer h.mu.Unlock(); return h.size }
func (h *Heap) Free() int64        { h.mu.Lock(); defer h.mu.Unlock(); return h.free }
func (h *Heap) Dirty() bool        { h.mu.Lock(); defer h.mu.Unlock(); return h.dirty }
func (h *Heap) ParentID() int64    { h.mu.Lock(); defer h.mu.Unlock(); return h.parentID }
func (h *Heap) SetParentID(id int64) {
	h.mu.Lock()
	h.parentID = id
	h.mu.Unlock()
}
func (h *Heap) SetNewStorage(s Storage) {
	h.mu.Lock()
	h.newstorage = s
	h.mu.Unlock()
}
func (h *Heap) Filename() string { return h.filename }

// Path returns the full on-disk path of this heap's backing file,
// letting callers stat it (e.g. to recover a variable heap's used-byte
// count when reloading a column whose exact size wasn't recorded
// elsewhere).
func (h *Heap) Path() string { return h.path() }
func (h *Heap) path() string { return filepath.Join(h.farmDir, h.filename) }

// Bytes returns the heap's current backing slice. The slice is only
// valid until the next Extend/Shrink call, which may move the base;
// callers must re-derive pointers after calling either.
func (h *Heap) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.base[:h.free]
}

// Cap returns the full reserved (not just used) region.
func (h *Heap) Cap() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.base[:h.size]
}

func prefersMMap(size int64, cfg Config, persistent bool) bool {
	threshold := cfg.MMapMinSizeTransient
	if persistent {
		threshold = cfg.MMapMinSizePersistent
	}
	return size >= threshold || CurrentMemSize()+size >= cfg.MemMaxSize
}

// Alloc reserves room for nItems of itemSize bytes each. It chooses
// mem vs mmap using the configured thresholds and the farm's
// persistence intent.
func (h *Heap) Alloc(nItems, itemSize int64, persistent bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refcount == 0 {
		return ErrClosed
	}
	size := nItems * itemSize
	if size < 0 {
		return fmt.Errorf("heap: invalid alloc size %d", size)
	}
	if size == 0 {
		size = itemSize // always reserve at least one item's worth
	}
	if !prefersMMap(size, h.cfg, persistent) || h.filename == "" {
		h.base = make([]byte, size)
		h.storage = StorageMem
		h.newstorage = StorageMem
		atomic.AddInt64(&curMemSize, size)
	} else {
		target := StorageMMapShared
		if !persistent {
			target = StorageMMapPrivate
		}
		if err := h.allocMMapLocked(size, target); err != nil {
			return err
		}
	}
	h.size = size
	h.free = 0
	h.dirty = false
	return nil
}

// Extend grows the heap to newSize, preserving existing bytes. mem
// heaps allocate a new Go slice of newSize and copy the old bytes
// into it (or spill to mmap once past the threshold); mmap heaps prefer mremap
// and fall back to unmap-and-remap-elsewhere.
func (h *Heap) Extend(newSize int64, maySharePages bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refcount == 0 {
		return ErrClosed
	}
	if newSize <= h.size {
		return nil
	}
	switch h.storage {
	case StorageMem:
		if prefersMMap(newSize, h.cfg, h.newstorage != StorageMem) && h.filename != "" {
			// crossed the threshold: persist current contents and re-map.
			if err := h.spillToMMapLocked(newSize); err != nil {
				return err
			}
			return nil
		}
		grown := make([]byte, newSize)
		copy(grown, h.base)
		atomic.AddInt64(&curMemSize, newSize-h.size)
		h.base = grown
		h.size = newSize
		return nil
	case StorageMMapShared, StorageMMapPrivate:
		return h.extendMMapLocked(newSize, maySharePages)
	}
	return fmt.Errorf("heap: unknown storage %v", h.storage)
}

// Shrink truncates the heap to newSize, rounded up to the page size
// for mmap storage.
func (h *Heap) Shrink(newSize int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refcount == 0 {
		return ErrClosed
	}
	if newSize >= h.size {
		return nil
	}
	switch h.storage {
	case StorageMem:
		atomic.AddInt64(&curMemSize, newSize-h.size)
		h.base = h.base[:newSize]
		h.size = newSize
		h.free = ints.Min(h.free, newSize)
		return nil
	case StorageMMapShared, StorageMMapPrivate:
		rounded := int64(ints.AlignUp(uint(newSize), uint(pageSize)))
		return h.shrinkMMapLocked(rounded)
	}
	return fmt.Errorf("heap: unknown storage %v", h.storage)
}

// SetUsed records how many of the reserved bytes are actually in use
// and marks the heap dirty. Callers hold their own higher-level lock
// (the column's heaplock) around the logical operation that changes
// both the heap contents and this counter.
func (h *Heap) SetUsed(n int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > h.size {
		return fmt.Errorf("heap: used %d exceeds reserved size %d", n, h.size)
	}
	h.free = n
	h.dirty = true
	return nil
}

// Incref increments the heap's reference count.
func (h *Heap) Incref() {
	atomic.AddInt32(&h.refcount, 1)
}

// Decref decrements the reference count; when it reaches zero the
// heap's memory is released and, if remove is true (or was requested
// earlier via MarkRemoveOnZero), its on-disk files are unlinked.
func (h *Heap) Decref(remove bool) (int32, error) {
	n := atomic.AddInt32(&h.refcount, -1)
	if n > 0 {
		return n, nil
	}
	if n < 0 {
		return n, fmt.Errorf("heap: decref below zero")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var err error
	switch h.storage {
	case StorageMMapShared, StorageMMapPrivate:
		err = h.unmapLocked()
	}
	h.base = nil
	if h.storage == StorageMem {
		atomic.AddInt64(&curMemSize, -h.size)
	}
	if remove || h.removeOnZero {
		if rmErr := h.deleteFilesLocked(); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return 0, err
}

// MarkRemoveOnZero requests that Decref unlink this heap's files once
// the refcount reaches zero, even if Decref(false) is called.
func (h *Heap) MarkRemoveOnZero() {
	h.mu.Lock()
	h.removeOnZero = true
	h.mu.Unlock()
}
