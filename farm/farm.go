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

// Package farm implements the on-disk directory layout that backs the
// object pool: per-role storage roots, the octal subdirectory nesting
// that keeps a single directory from holding too many column files,
// and the BAKDIR/SUBDIR/DELDIR staging directories used by the commit
// protocol.
package farm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/monetkit/gdk/fsutil"
)

const (
	BAKDIR = "bakdir"
	DELDIR = "deldir"
	SUBDIR = "subdir"
)

// Farm is one configured storage root.
type Farm struct {
	Dir string
}

// New returns a Farm rooted at dir, creating it if necessary.
func New(dir string) (*Farm, error) {
	if err := os.MkdirAll(filepath.Join(dir, "bat"), 0o755); err != nil {
		return nil, fmt.Errorf("farm: creating %s: %w", dir, err)
	}
	return &Farm{Dir: dir}, nil
}

// subdir groups 64 columns per directory via 2-digit octal nesting,
// so a farm with many columns never puts too many files in one
// directory.
func subdir(id int64) string {
	return fmt.Sprintf("%02o", (id/64)%64)
}

// Path returns the path for column id's file with the given
// extension (without the leading dot), creating the containing
// subdirectory if necessary.
func (f *Farm) Path(id int64, ext string) (string, error) {
	dir := filepath.Join(f.Dir, "bat", subdir(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("farm: creating %s: %w", dir, err)
	}
	return filepath.Join(dir, fmt.Sprintf("%o.%s", id, ext)), nil
}

// Basename returns the path prefix (without extension) for column id,
// suitable for passing to heap.New's filename parameter with an
// extension appended by the caller.
func (f *Farm) Basename(id int64) string {
	return filepath.Join("bat", subdir(id), fmt.Sprintf("%o", id))
}

func (f *Farm) stagingPath(name string) string { return filepath.Join(f.Dir, name) }

// BeginBackup creates BAKDIR, failing if one already exists: its
// existence is what serializes concurrent commits.
func (f *Farm) BeginBackup() (string, error) {
	dir := f.stagingPath(BAKDIR)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("farm: commit already in progress: %w", err)
	}
	return dir, nil
}

// BeginSubCommit creates a uniquely-named staging directory under
// SUBDIR for a sub-commit: a lighter-weight append-only commit that
// writes new files without ever touching or replacing a
// live one, so it needs no BAKDIR pre-image. Each sub-commit gets its
// own UUID-named subdirectory so independent sub-commits can proceed
// concurrently without racing on directory creation.
func (f *Farm) BeginSubCommit() (string, error) {
	dir := filepath.Join(f.stagingPath(SUBDIR), uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("farm: creating sub-commit dir: %w", err)
	}
	return dir, nil
}

// FinishSubCommit merges a sub-commit's staged files directly into
// the live farm tree via rename (no backup needed, since a sub-commit
// only ever adds files) and removes its now-empty staging directory.
// The merge is crash-idempotent: if interrupted partway, the files
// already renamed are simply absent from dir on the next call, so
// resuming (or recovering, see Recover) just finishes the rest.
func (f *Farm) FinishSubCommit(dir string) error {
	if err := mergeDirInto(dir, f.Dir); err != nil {
		return fmt.Errorf("farm: sub-commit merge: %w", err)
	}
	return os.RemoveAll(dir)
}

// CommitSwitch performs the atomic BAKDIR -> DELDIR rename that makes
// a commit durable. After this call returns successfully, no crash
// can roll the commit back.
func (f *Farm) CommitSwitch() error {
	return os.Rename(f.stagingPath(BAKDIR), f.stagingPath(DELDIR))
}

// FinishEpilogue removes DELDIR once its contents have been applied.
func (f *Farm) FinishEpilogue() error {
	return os.RemoveAll(f.stagingPath(DELDIR))
}

// Recover runs startup recovery. Any sub-commit staging directories
// left behind by a crash mid-merge are
// finished first (same idempotent merge FinishSubCommit performs).
// Then: if BAKDIR survived with a BBP.dir in it, the crash happened before the atomic
// switch: the commit never took effect, and onEntry is called once
// per file under BAKDIR (its relative path and absolute source path,
// isKill=false) so the caller can copy each pre-image back over its
// live counterpart, rolling the attempted commit back. If instead
// DELDIR survived, the switch already completed and the commit is
// durable; onEntry is called for each ".kill" marker (isKill=true) so
// the caller can finish deleting the live file it names, and DELDIR's
// remaining pre-images (no longer needed) are simply discarded.
func (f *Farm) Recover(onEntry func(relPath, srcPath string, isKill bool) error) error {
	sub := f.stagingPath(SUBDIR)
	if entries, err := os.ReadDir(sub); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if err := f.FinishSubCommit(filepath.Join(sub, e.Name())); err != nil {
				return err
			}
		}
	}

	bak := f.stagingPath(BAKDIR)
	if _, err := os.Stat(filepath.Join(bak, "BBP.dir")); err == nil {
		if err := walkFiles(bak, func(rel string) error {
			return onEntry(rel, filepath.Join(bak, rel), false)
		}); err != nil {
			return err
		}
		if err := os.RemoveAll(bak); err != nil {
			return err
		}
		return nil
	}

	del := f.stagingPath(DELDIR)
	if _, err := os.Stat(del); err == nil {
		if err := walkFiles(del, func(rel string) error {
			if filepath.Ext(rel) != ".kill" {
				return nil
			}
			return onEntry(rel, filepath.Join(del, rel), true)
		}); err != nil {
			return err
		}
		if err := os.RemoveAll(del); err != nil {
			return err
		}
	}
	return nil
}

// walkFiles visits every regular file under root in lexicographic
// order, using fsutil.WalkDir over an os.DirFS view of root so
// recovery scans BAKDIR/DELDIR the same way a farm would scan a
// query's candidate directory tree (fsutil is otherwise used for
// read-side directory/glob traversal; this is its write-path use).
func walkFiles(root string, fn func(rel string) error) error {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return fsutil.WalkDir(os.DirFS(root), ".", "", "", func(name string, d fsutil.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name == "." || d.IsDir() {
			return nil
		}
		return fn(filepath.FromSlash(name))
	})
}

func mergeDirInto(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Rename(path, target)
	})
}
