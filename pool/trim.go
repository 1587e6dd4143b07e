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

package pool

import (
	"math/rand"
	"time"
)

// TrimConfig governs the background Trimmer: a minimum idle age
// before a clean, unpinned column's heaps are actually unloaded, a
// per-pass time budget, and an optional logger.
type TrimConfig struct {
	// MinimumAge is how long a column's heaps must have sat idle
	// (physical refcount 0, not dirty) before Trim will unload them.
	MinimumAge time.Duration
	// MaxDelay bounds how long a single Trim pass may run; zero means
	// unlimited.
	MaxDelay time.Duration
	// Likelihood is the percent chance ([0,100]) that Run actually
	// performs a pass; see Config.TrimLikelihood.
	Likelihood int
	Logf       func(f string, args ...interface{})
}

const (
	DefaultTrimMinimumAge = 30 * time.Second
	DefaultTrimLikelihood = 100
)

func (c *TrimConfig) logf(f string, args ...interface{}) {
	if c.Logf != nil {
		c.Logf(f, args...)
	}
}

// Trimmer tracks idle time per slot in its idle map, without adding a
// field to the hot slot struct; Trimmer owns this map exclusively.
type Trimmer struct {
	pool *Pool
	cfg  TrimConfig
	idle map[int64]time.Time
	stop chan struct{}
	done chan struct{}
}

// NewTrimmer builds a Trimmer over p using cfg, defaulting zero fields
// the way DefaultConfig does for the root package.
func NewTrimmer(p *Pool, cfg TrimConfig) *Trimmer {
	if cfg.MinimumAge == 0 {
		cfg.MinimumAge = DefaultTrimMinimumAge
	}
	if cfg.Likelihood == 0 {
		cfg.Likelihood = DefaultTrimLikelihood
	}
	return &Trimmer{
		pool: p,
		cfg:  cfg,
		idle: make(map[int64]time.Time),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run executes one trim pass synchronously, scanning every allocated
// slot for columns whose heaps are loaded, unpinned, clean, and have
// been idle at least MinimumAge, unloading them.
func (t *Trimmer) Run() int {
	if rand.Intn(100) >= t.cfg.Likelihood {
		return 0
	}
	deadline := time.Time{}
	if t.cfg.MaxDelay > 0 {
		deadline = time.Now().Add(t.cfg.MaxDelay)
	}
	now := time.Now()
	unloaded := 0

	t.pool.mu.RLock()
	chunks := t.pool.chunks
	t.pool.mu.RUnlock()

	for chunkIdx, row := range chunks {
		for off, s := range row {
			if !deadline.IsZero() && time.Now().After(deadline) {
				t.cfg.logf("pool: trim pass hit MaxDelay after %d unloads", unloaded)
				return unloaded
			}
			id := int64(chunkIdx)*slotsPerChunk + int64(off)
			s.mu.Lock()
			loaded := s.col != nil && s.physical == 0 && s.status&statusDirty == 0
			s.mu.Unlock()
			if !loaded {
				delete(t.idle, id)
				continue
			}
			since, seen := t.idle[id]
			if !seen {
				t.idle[id] = now
				continue
			}
			if now.Sub(since) < t.cfg.MinimumAge {
				continue
			}
			if t.pool.unloadIfIdle(id) {
				delete(t.idle, id)
				unloaded++
			}
		}
	}
	if unloaded > 0 {
		t.cfg.logf("pool: trim unloaded %d idle columns", unloaded)
	}
	return unloaded
}

// Start runs Run on the given interval until Stop is called.
func (t *Trimmer) Start(interval time.Duration) {
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.Run()
			}
		}
	}()
}

// Stop halts a Trimmer started with Start and waits for it to exit.
func (t *Trimmer) Stop() {
	close(t.stop)
	<-t.done
}
