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

package gdk

import (
	"fmt"
	"path/filepath"

	"github.com/monetkit/gdk/atom"
	"github.com/monetkit/gdk/column"
	"github.com/monetkit/gdk/farm"
	"github.com/monetkit/gdk/ints"
	"github.com/monetkit/gdk/pool"
)

// DB is the top-level handle returned by NewPool: a configured object
// pool plus the diagnostics and keying Config needs but pool itself
// (kept free of any dependency on this package) does not hold.
type DB struct {
	*pool.Pool
	Config
	Atoms   *atom.Registry
	HashK0  uint64
	HashK1  uint64
	errs    *Errors
	trimmer *pool.Trimmer
	farms   map[string]*farm.Farm
}

// NewPool opens a pool over cfg's configured farms, creating any that
// don't yet exist, recovering any in-flight commit left behind by a
// prior crash, and — if cfg.TrimInterval is non-zero — starting the
// background trimmer. The siphash key used for every hash index built
// against this pool is generated fresh with crypto/rand so hash values
// aren't predictable across restarts of the same process.
func NewPool(cfg Config) (*DB, error) {
	if cfg.TransientFarm() == "" {
		return nil, newError("NewPool", 0, ClassInvariantViolation, fmt.Errorf("no farm configured with RoleTransient"))
	}

	farms := make(map[string]*farm.Farm, len(cfg.Farms))
	for _, fc := range cfg.Farms {
		fm, err := farm.New(fc.Dir)
		if err != nil {
			return nil, newError("NewPool", 0, ClassResourceExhaustion, err)
		}
		farms[fc.Dir] = fm
		c := &pool.Commit{Farm: fm, MACKey: macKey(fc.Dir)}
		if err := c.Recover(); err != nil {
			return nil, newError("NewPool", 0, ClassCorruption, fmt.Errorf("recovering farm %s: %w", fc.Dir, err))
		}
	}

	reg := atom.Builtins()

	k0, k1, err := randomHashKeys()
	if err != nil {
		return nil, newError("NewPool", 0, ClassResourceExhaustion, err)
	}
	p := pool.New(farms, reg, cfg.heapConfig, k0, k1)

	db := &DB{
		Pool:   p,
		Config: cfg,
		Atoms:  reg,
		HashK0: k0,
		HashK1: k1,
		errs:   NewErrors(64),
		farms:  farms,
	}

	if cfg.TrimInterval > 0 {
		db.trimmer = pool.NewTrimmer(p, pool.TrimConfig{
			MinimumAge: cfg.TrimMinimumAge,
			Likelihood: cfg.TrimLikelihood,
			Logf:       cfg.Logf,
		})
		db.trimmer.Start(cfg.TrimInterval)
	}
	return db, nil
}

// Close stops the background trimmer, if one was started.
func (db *DB) Close() error {
	if db.trimmer != nil {
		db.trimmer.Stop()
	}
	return nil
}

// LastErrors returns a snapshot of the most recently recorded errors
// across every operation performed through db.
func (db *DB) LastErrors() []error {
	return db.errs.Snapshot()
}

func (db *DB) record(err error) error {
	db.errs.Record(err)
	return err
}

// Fix shadows pool.Pool.Fix to record failures into db's diagnostic
// ring, matching the rest of this type's error-recording wrappers.
func (db *DB) Fix(id int64) (*column.Column, error) {
	col, err := db.Pool.Fix(id)
	if err != nil {
		return nil, db.record(newError("Fix", id, ClassConcurrencyRace, err))
	}
	return col, nil
}

// Unfix shadows pool.Pool.Unfix to record failures into db's
// diagnostic ring.
func (db *DB) Unfix(id int64) error {
	if err := db.Pool.Unfix(id); err != nil {
		return db.record(newError("Unfix", id, ClassConcurrencyRace, err))
	}
	return nil
}

// Alloc shadows pool.Pool.Alloc to record failures into db's
// diagnostic ring. persistent should be true when farmDir is (or
// should be treated as) db.PersistentFarm().
func (db *DB) Alloc(farmDir, basename string, a atom.ID, persistent bool) (int64, error) {
	id, err := db.Pool.Alloc(farmDir, basename, a, persistent)
	if err != nil {
		return 0, db.record(newError("Alloc", 0, ClassResourceExhaustion, err))
	}
	return id, nil
}

// Release shadows pool.Pool.Release to record failures into db's
// diagnostic ring.
func (db *DB) Release(id int64) error {
	if err := db.Pool.Release(id); err != nil {
		return db.record(newError("Release", id, ClassInvariantViolation, err))
	}
	return nil
}

// Commit runs the global commit protocol over
// farmDir's farm: every loaded persistent column contributes its
// current metadata to a freshly written BBP.dir, and every column
// marked dirty since the last commit (or since open) has its heaps
// backed up and rewritten. farmDir must be one of cfg.Farms' Dir
// values passed to NewPool.
func (db *DB) Commit(farmDir string) error {
	fm, ok := db.farms[farmDir]
	if !ok {
		return db.record(newError("Commit", 0, ClassInvariantViolation, fmt.Errorf("unknown farm %q", farmDir)))
	}
	cm := &pool.Commit{Farm: fm, MACKey: macKey(farmDir)}
	if err := db.Pool.Commit(cm); err != nil {
		return db.record(newError("Commit", 0, ClassCorruption, err))
	}
	return nil
}

func randomHashKeys() (uint64, uint64, error) {
	var keys [2]uint64
	if err := ints.RandomFillSlice(keys[:]); err != nil {
		return 0, 0, err
	}
	return keys[0], keys[1], nil
}

// ReadDirectory loads and MAC-verifies the BBP.dir for the farm
// rooted at dir, without opening a live Pool over it. cmd/gdkcat uses
// this for both dump (look up one record) and verify (walk every
// record and cross-check it against the files on disk), matching
// cmd/sdb's describe/validate commands reading an index directly
// rather than going through db.Open.
func ReadDirectory(dir string) ([]pool.Record, error) {
	return pool.LoadDirectory(filepath.Join(dir, "BBP.dir"), macKey(dir))
}

// macKey derives a stable per-farm MAC key. Unlike the hash-index
// siphash keys, this key must survive restarts (it authenticates
// BBP.dir across process lifetimes), so it is not randomized; it is
// derived from the farm's own path, giving every farm a distinct key
// without requiring a separate keyfile to manage.
func macKey(farmDir string) []byte {
	return []byte("gdk-bbp-dir-v2:" + farmDir)
}
