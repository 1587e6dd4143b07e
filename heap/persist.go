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
	"fmt"
	"os"

	"github.com/monetkit/gdk/compr"
)

// Save persists the heap's current contents. For mmap-shared storage
// the dirty pages are already the file
// contents, so Save only msyncs the mapping. For mmap-private
// storage, the dirty copy-on-write pages are written to a sidecar
// "<name>.new" file, which supersedes the base file once committed.
// For mem storage, the heap is written out for the first time,
// optionally compressed when algo is non-empty.
func (h *Heap) Save(algo string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.filename == "" {
		return fmt.Errorf("heap: cannot save an unnamed heap")
	}
	switch h.storage {
	case StorageMMapShared:
		return h.syncLocked()
	case StorageMMapPrivate:
		return h.saveSidecarLocked(h.path()+".new", algo)
	case StorageMem:
		return h.saveSidecarLocked(h.path(), algo)
	}
	return fmt.Errorf("heap: unknown storage %v", h.storage)
}

func (h *Heap) saveSidecarLocked(path, algo string) error {
	data := h.base[:h.free]
	if algo != "" {
		comp := compr.Compression(algo)
		data = comp.Compress(data, make([]byte, 0, len(data)))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("heap: writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("heap: renaming %s into place: %w", path, err)
	}
	h.dirty = false
	return nil
}

// Load reads a previously-saved heap of used bytes into memory (mem
// storage) without mapping it; used for transient columns and for
// recovery scenarios where mmap is undesirable. size is the number of
// used bytes (the on-disk encoding may be smaller if algo != "").
func (h *Heap) Load(size int64, algo string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	raw, err := os.ReadFile(h.path())
	if err != nil {
		return fmt.Errorf("heap: reading %s: %w", h.path(), err)
	}
	if algo != "" {
		decomp := compr.Decompression(algo)
		out := make([]byte, size)
		if err := decomp.Decompress(raw, out); err != nil {
			return fmt.Errorf("heap: decompressing %s: %w", h.path(), err)
		}
		raw = out
	}
	h.base = raw
	if int64(len(h.base)) < size {
		return fmt.Errorf("heap: %s shorter than declared size", h.path())
	}
	h.size = int64(len(h.base))
	h.free = size
	h.storage = StorageMem
	h.newstorage = StorageMem
	h.dirty = false
	return nil
}

func (h *Heap) deleteFilesLocked() error {
	if h.filename == "" {
		return nil
	}
	var firstErr error
	for _, suffix := range []string{"", ".new", ".tmp"} {
		if err := os.Remove(h.path() + suffix); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Delete removes the heap's on-disk files unconditionally, ignoring
// the reference count. Callers only use this once they hold the only
// reference (e.g. during the commit epilogue's cleanup of a deleted
// column).
func (h *Heap) Delete() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deleteFilesLocked()
}
