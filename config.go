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

// Package gdk implements a column-oriented storage engine: typed
// slot-and-heap columns backed by an object pool, with hash and order
// indexes, sort drivers, and an atomic two-phase commit protocol.
// Subpackages implement individual components (atom, heap, column,
// hash, orderidx, sortutil, pool, farm); this package ties them
// together with shared configuration, error types, and Logf plumbing.
package gdk

import (
	"time"

	"github.com/monetkit/gdk/heap"
)

// Default knobs, each documented alongside its constant.
const (
	// DefaultMMapMinSizePersistent is the byte threshold above which a
	// persistent heap switches from mem to mmap-shared storage.
	DefaultMMapMinSizePersistent = 1 << 18
	// DefaultMMapMinSizeTransient is the byte threshold above which a
	// transient (non-persistent) heap switches to mmap-private storage.
	DefaultMMapMinSizeTransient = 1 << 20
	// DefaultMemMaxSize is the process-wide VM budget above which new
	// heap allocations prefer mmap over mem storage.
	DefaultMemMaxSize = 1 << 30
	// DefaultTrimMinimumAge is how long a column must sit with physical
	// refcount zero before the trimmer will unload its heaps.
	DefaultTrimMinimumAge = 30 * time.Second
)

// Role is a bitmask describing what a configured farm directory is
// used for. Role 1 (bit 0) is mandatory: every pool needs at least
// one transient farm.
type Role uint32

const (
	// RoleTransient marks the mandatory scratch farm used for
	// non-persistent heaps and temporary columns.
	RoleTransient Role = 1 << iota
	// RolePersistent marks a farm that holds committed column data.
	RolePersistent
	// RoleHash marks a farm used for hash index heaps.
	RoleHash
	// RoleOrderIndex marks a farm used for order index heaps.
	RoleOrderIndex
	// RoleVarHeap marks a farm used for variable-width side heaps.
	RoleVarHeap
)

// Farm describes one configured storage directory and the roles it
// serves. A Config may list more than one Farm; the transient role
// must be present on exactly one of them.
type Farm struct {
	Dir   string
	Roles Role
}

// DebugFlag enables assertions, property rechecks, and other costly
// diagnostics.
type DebugFlag uint32

const (
	DebugAssertions DebugFlag = 1 << iota
	DebugRecheckProperties
	DebugNoSync
)

// Config is constructed once and threaded explicitly through Open/
// NewPool — never a package global, so multiple pools in one process
// never fight over shared state.
type Config struct {
	Farms []Farm

	MMapMinSizePersistent int64
	MMapMinSizeTransient  int64
	MemMaxSize            int64

	// TrimMinimumAge and TrimInterval configure the background
	// trimmer; TrimInterval of zero disables the trimmer.
	TrimMinimumAge time.Duration
	TrimInterval   time.Duration
	// TrimLikelihood is the percent chance ([0,100]) that a scheduled
	// trim pass actually runs; 0 is treated as 100. Spreading passes
	// probabilistically avoids every pool in a fleet trimming in lockstep
	// when they share the same TrimInterval.
	TrimLikelihood int

	Debug DebugFlag

	// Logf receives diagnostic messages from the pool, commit
	// protocol, and trimmer. It is nil-checked at every call site and
	// must be safe for concurrent use. A nil Logf discards messages.
	Logf func(string, ...any)
}

// DefaultConfig returns a Config with the documented defaults and a
// single farm at dir serving both the transient and persistent roles.
func DefaultConfig(dir string) Config {
	return Config{
		Farms:                 []Farm{{Dir: dir, Roles: RoleTransient | RolePersistent}},
		MMapMinSizePersistent: DefaultMMapMinSizePersistent,
		MMapMinSizeTransient:  DefaultMMapMinSizeTransient,
		MemMaxSize:            DefaultMemMaxSize,
		TrimMinimumAge:        DefaultTrimMinimumAge,
		TrimInterval:          10 * time.Second,
	}
}

// logf calls c.Logf if it is non-nil; every fallible call site on
// Config routes its diagnostics through this one nil-checked helper.
func (c *Config) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// heapConfig projects the relevant knobs down to heap.Config for a
// heap allocated under this Config.
func (c *Config) heapConfig() heap.Config {
	return heap.Config{
		MMapMinSizePersistent: c.MMapMinSizePersistent,
		MMapMinSizeTransient:  c.MMapMinSizeTransient,
		MemMaxSize:            c.MemMaxSize,
	}
}

// TransientFarm returns the directory configured with RoleTransient,
// or "" if none is configured (a Config used this way is invalid).
func (c *Config) TransientFarm() string {
	for _, f := range c.Farms {
		if f.Roles&RoleTransient != 0 {
			return f.Dir
		}
	}
	return ""
}

// PersistentFarm returns the directory configured with RolePersistent,
// falling back to the transient farm if none is explicitly marked.
func (c *Config) PersistentFarm() string {
	for _, f := range c.Farms {
		if f.Roles&RolePersistent != 0 {
			return f.Dir
		}
	}
	return c.TransientFarm()
}
