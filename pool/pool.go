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

// Package pool implements the object pool that owns every live column
// in a configured set of farms: a two-level ID-indexed slot array, a
// free list for recycled IDs, and the fixed/loaded refcounting and
// load/unload state machine that decides when a column's heaps are
// actually resident in memory.
package pool

import (
	"fmt"
	"sync"

	"github.com/monetkit/gdk/atom"
	"github.com/monetkit/gdk/column"
	"github.com/monetkit/gdk/date"
	"github.com/monetkit/gdk/farm"
	"github.com/monetkit/gdk/hash"
	"github.com/monetkit/gdk/heap"
	"github.com/monetkit/gdk/orderidx"

	"golang.org/x/exp/maps"
)

// status bits for a slot, set while a column's heaps are being loaded
// or saved, and to record whether a slot is persistent/dirty.
type status uint32

const (
	statusLoading status = 1 << iota
	statusSaving
	statusUnloading
	statusPersistent
	statusDirty
)

const slotsPerChunk = 1 << 14

// slot is the pool's bookkeeping record for one column ID. The Column
// itself is nil whenever the slot is unloaded or free.
type slot struct {
	mu       sync.Mutex
	col      *column.Column
	farm     string
	basename string
	atomID   atom.ID
	physical int32 // pin count: heaps must stay resident
	logical  int32 // reference count: ID must stay allocated
	status   status

	// hasSaved, savedCount and savedWidth record the Count/Width this
	// column had the last time Commit wrote its heaps to disk, so a
	// later Fix of an unloaded-but-still-allocated slot knows whether
	// to call column.Load (there are bytes on disk to read back) or
	// column.New (there aren't, e.g. a never-committed column).
	hasSaved   bool
	savedCount int64
	savedWidth int32

	// hashIdx is this column's point-lookup index, built on demand by
	// EnsureHash and kept consistent with Append/Replace/Delete calls
	// made through the pool (rather than directly against the Column).
	// hashDirty marks it for a .hashb/.hashl sidecar rewrite on the
	// next Commit; hashSaved records whether a previous Commit already
	// wrote one, so a later Sort that drops hashIdx (a physical reorder
	// invalidates it) knows to emit a Kill write instead of leaving a
	// stale sidecar on disk.
	hashIdx   *hash.Index
	hashDirty bool
	hashSaved bool

	// order is the permutation most recently produced by Sort, kept
	// around so a persistent column's sortedness doesn't need to be
	// recomputed from scratch on every Commit. orderDirty marks it for
	// an .orderidx sidecar rewrite.
	order      *orderidx.Index
	orderDirty bool
}

// Pool owns every column across a set of named farms.
type Pool struct {
	mu        sync.RWMutex
	farms     map[string]*farm.Farm
	atoms     *atom.Registry
	chunks    [][]*slot
	free      []int64
	names     map[string]int64 // logical name -> id
	cfgFn     func() heap.Config
	hashK0    uint64
	hashK1    uint64
}

// New creates a Pool over the given farms, using reg to resolve atom
// descriptors and cfgFn to produce heap.Config values for new columns.
// hashK0/hashK1 seed every hash.Index EnsureHash builds against this
// pool; callers generate them once at process start (see
// gdk.NewPool's use of crypto/rand) so bucket placement isn't
// predictable across restarts.
func New(farms map[string]*farm.Farm, reg *atom.Registry, cfgFn func() heap.Config, hashK0, hashK1 uint64) *Pool {
	return &Pool{
		farms:  farms,
		atoms:  reg,
		names:  make(map[string]int64),
		cfgFn:  cfgFn,
		hashK0: hashK0,
		hashK1: hashK1,
	}
}

func (p *Pool) slotFor(id int64) *slot {
	chunk := int(id / slotsPerChunk)
	off := int(id % slotsPerChunk)
	if chunk >= len(p.chunks) {
		return nil
	}
	return p.chunks[chunk][off]
}

func (p *Pool) growTo(id int64) {
	chunk := int(id / slotsPerChunk)
	for chunk >= len(p.chunks) {
		row := make([]*slot, slotsPerChunk)
		for i := range row {
			row[i] = &slot{}
		}
		p.chunks = append(p.chunks, row)
	}
}

// Alloc reserves a fresh ID, recycling from the free list when
// possible. persistent controls which Persistence Fix will construct
// the column with.
func (p *Pool) Alloc(farmName, basename string, a atom.ID, persistent bool) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var id int64
	if n := len(p.free); n > 0 {
		id = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		id = p.nextID()
	}
	p.growTo(id)
	s := p.slotFor(id)
	s.mu.Lock()
	s.farm = farmName
	s.basename = basename
	s.atomID = a
	s.logical = 1
	s.physical = 0
	s.col = nil
	s.status = 0
	if persistent {
		s.status |= statusPersistent
	}
	s.mu.Unlock()
	return id, nil
}

func (p *Pool) nextID() int64 {
	total := int64(len(p.chunks)) * slotsPerChunk
	for chunk, row := range p.chunks {
		for off, s := range row {
			s.mu.Lock()
			unused := s.logical == 0 && s.col == nil && s.farm == ""
			s.mu.Unlock()
			if unused {
				return int64(chunk)*slotsPerChunk + int64(off)
			}
		}
	}
	return total
}

// Register binds a logical name to id, wiring golang.org/x/exp/maps
// for the name->id table's bulk key listing used by Names below.
func (p *Pool) Register(name string, id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names[name] = id
}

// Lookup resolves a logical name to its column ID.
func (p *Pool) Lookup(name string) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.names[name]
	return id, ok
}

// Names returns every registered logical name.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Keys(p.names)
}

// Retain bumps the logical refcount, keeping id's identity valid.
func (p *Pool) Retain(id int64) error {
	p.mu.RLock()
	s := p.slotFor(id)
	p.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("pool: no such column %d", id)
	}
	s.mu.Lock()
	s.logical++
	s.mu.Unlock()
	return nil
}

// Release drops the logical refcount, freeing id's slot for reuse
// once it reaches zero and nothing still has it physically fixed.
func (p *Pool) Release(id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slotFor(id)
	if s == nil {
		return fmt.Errorf("pool: no such column %d", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logical == 0 {
		return fmt.Errorf("pool: release of unreferenced column %d", id)
	}
	s.logical--
	if s.logical == 0 && s.physical == 0 {
		s.col = nil
		s.farm = ""
		s.basename = ""
		s.status = 0
		p.free = append(p.free, id)
	}
	return nil
}

// Fix pins id's heaps resident, loading them from disk if necessary,
// and returns the live Column. Unfix must be called exactly once per
// successful Fix.
func (p *Pool) Fix(id int64) (*column.Column, error) {
	p.mu.RLock()
	s := p.slotFor(id)
	f := p.farms
	p.mu.RUnlock()
	if s == nil {
		return nil, fmt.Errorf("pool: no such column %d", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logical == 0 {
		return nil, fmt.Errorf("pool: fix of unreferenced column %d", id)
	}
	if s.col == nil {
		fm, ok := f[s.farm]
		if !ok {
			return nil, fmt.Errorf("pool: unknown farm %q for column %d", s.farm, id)
		}
		s.status |= statusLoading
		a := p.atoms.Lookup(s.atomID)
		if a == nil {
			s.status &^= statusLoading
			return nil, fmt.Errorf("pool: unknown atom %d for column %d", s.atomID, id)
		}
		persist := column.Transient
		if s.status&statusPersistent != 0 {
			persist = column.Persistent
		}
		var col *column.Column
		var err error
		if s.hasSaved && s.savedCount > 0 {
			col, err = column.Load(a, fm.Dir, s.basename, p.cfgFn(), persist, s.savedCount, s.savedWidth)
		} else {
			col = column.New(a, fm.Dir, s.basename, p.cfgFn(), persist)
		}
		if err != nil {
			s.status &^= statusLoading
			return nil, fmt.Errorf("pool: fix: reloading column %d: %w", id, err)
		}
		s.col = col
		s.status &^= statusLoading
	}
	s.physical++
	return s.col, nil
}

// Unfix releases one physical pin acquired by Fix. It does not unload
// the column eagerly; the Trimmer is responsible for reclaiming idle,
// clean heaps on its own schedule.
func (p *Pool) Unfix(id int64) error {
	p.mu.RLock()
	s := p.slotFor(id)
	p.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("pool: no such column %d", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.physical == 0 {
		return fmt.Errorf("pool: unfix without matching fix on column %d", id)
	}
	s.physical--
	return nil
}

// MarkDirty flags id's heaps as modified since the last commit.
func (p *Pool) MarkDirty(id int64) {
	p.mu.RLock()
	s := p.slotFor(id)
	p.mu.RUnlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	s.status |= statusDirty
	s.mu.Unlock()
}

// Commit runs the global commit protocol over every currently-loaded
// persistent column: every such column contributes a Record to the
// rewritten BBP.dir, and the ones MarkDirty flagged since the last
// commit additionally contribute a writeFile per backing heap so
// cm.Run actually rewrites their bytes. A column that hasn't changed
// keeps its on-disk heap files untouched but still has its metadata
// re-asserted in the fresh directory. On success every dirty column's
// dirty bit is cleared and Inserted advances to Count so a later
// Replace/Delete without `force` sees those slots as read-only
// committed data; each dirty slot also records its Count/Width so a
// later Fix, after the column has been trimmed out of memory, knows
// to reload from disk via column.Load rather than starting fresh.
// Persistent columns that exist on disk but were never loaded in this
// process at all are outside this pass; see DESIGN.md's
// "directory-driven reopen" note. A slot whose hash index or order
// index changed since the last commit (tracked by EnsureHash/Append/
// Replace/Delete/Sort below) additionally contributes its .hashb/
// .hashl or .orderidx sidecar, or a Kill write when Sort dropped a
// hash index that a previous commit had persisted.
func (p *Pool) Commit(cm *Commit) error {
	p.mu.RLock()
	chunks := p.chunks
	nameOf := make(map[int64]string, len(p.names))
	for name, id := range p.names {
		nameOf[id] = name
	}
	p.mu.RUnlock()

	now := date.Now()
	var records []Record
	var writes []writeFile
	var dirtySlots []*slot
	var hashSlots []*slot
	var orderSlots []*slot

	for chunkIdx, row := range chunks {
		for off, s := range row {
			s.mu.Lock()
			if s.col == nil || s.status&statusPersistent == 0 {
				s.mu.Unlock()
				continue
			}
			id := int64(chunkIdx)*slotsPerChunk + int64(off)
			col := s.col
			records = append(records, Record{
				ID:         id,
				Name:       nameOf[id],
				Farm:       s.farm,
				Basename:   s.basename,
				AtomID:     int32(s.atomID),
				Width:      int32(col.Width),
				Count:      col.Count,
				Sorted:     col.Sorted,
				RevSorted:  col.RevSorted,
				Key:        col.Key,
				Persistent: true,
				CommitTime: now,
			})
			if s.status&statusDirty != 0 {
				for _, h := range col.Heaps() {
					writes = append(writes, writeFile{
						RelPath: h.Filename(),
						Data:    append([]byte(nil), h.Bytes()...),
					})
				}
				dirtySlots = append(dirtySlots, s)
			}
			switch {
			case s.hashDirty && s.hashIdx != nil:
				bucketBytes, linkBytes := s.hashIdx.Marshal()
				writes = append(writes, writeFile{RelPath: s.basename + ".hashb", Data: bucketBytes})
				writes = append(writes, writeFile{RelPath: s.basename + ".hashl", Data: linkBytes})
				hashSlots = append(hashSlots, s)
			case s.hashSaved && s.hashIdx == nil:
				writes = append(writes, writeFile{RelPath: s.basename + ".hashb", Kill: true})
				writes = append(writes, writeFile{RelPath: s.basename + ".hashl", Kill: true})
				hashSlots = append(hashSlots, s)
			}
			if s.orderDirty && s.order != nil {
				writes = append(writes, writeFile{RelPath: s.basename + ".orderidx", Data: s.order.Bytes()})
				orderSlots = append(orderSlots, s)
			}
			s.mu.Unlock()
		}
	}

	if err := cm.Run(records, writes); err != nil {
		return fmt.Errorf("pool: commit: %w", err)
	}

	for _, s := range dirtySlots {
		s.mu.Lock()
		s.status &^= statusDirty
		if s.col != nil {
			s.hasSaved = true
			s.savedCount = s.col.Count
			s.savedWidth = int32(s.col.Width)
			s.col.Inserted = s.col.Count
		}
		s.mu.Unlock()
	}
	for _, s := range hashSlots {
		s.mu.Lock()
		s.hashDirty = false
		s.hashSaved = s.hashIdx != nil
		s.mu.Unlock()
	}
	for _, s := range orderSlots {
		s.mu.Lock()
		s.orderDirty = false
		s.mu.Unlock()
	}
	return nil
}

// unloadIfIdle unloads id's heaps when nothing holds a physical pin.
// Called by the Trimmer; returns true if it actually unloaded.
func (p *Pool) unloadIfIdle(id int64) bool {
	p.mu.RLock()
	s := p.slotFor(id)
	p.mu.RUnlock()
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col == nil || s.physical != 0 || s.status&statusDirty != 0 {
		return false
	}
	s.status |= statusUnloading
	s.col.Free()
	s.col = nil
	s.status &^= statusUnloading
	return true
}
