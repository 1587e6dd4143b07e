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

package farm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathCreatesSubdir(t *testing.T) {
	f, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p, err := f.Path(130, "tail")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(filepath.Dir(p)) != subdir(130) {
		t.Fatalf("expected subdir %s in path %s", subdir(130), p)
	}
	if _, err := os.Stat(filepath.Dir(p)); err != nil {
		t.Fatalf("expected subdir to be created: %v", err)
	}
}

func TestCommitSwitchRenamesBakToDel(t *testing.T) {
	f, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	bak, err := f.BeginBackup()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bak, "BBP.dir"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.CommitSwitch(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(f.Dir, DELDIR, "BBP.dir")); err != nil {
		t.Fatalf("expected DELDIR/BBP.dir to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.Dir, BAKDIR)); !os.IsNotExist(err) {
		t.Fatal("expected BAKDIR to be gone after switch")
	}
}

func TestBeginBackupSerializesConcurrentCommits(t *testing.T) {
	f, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.BeginBackup(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.BeginBackup(); err == nil {
		t.Fatal("expected second BeginBackup to fail while first is in progress")
	}
}

func TestRecoverDiscardsDeldirAfterCompletedSwitch(t *testing.T) {
	f, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	bak, err := f.BeginBackup()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bak, "BBP.dir"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.CommitSwitch(); err != nil {
		t.Fatal(err)
	}

	var seen []string
	if err := f.Recover(func(rel, src string, isKill bool) error {
		seen = append(seen, rel)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 0 {
		t.Fatalf("expected no onRestore calls with no .kill markers, got %v", seen)
	}
	if _, err := os.Stat(filepath.Join(f.Dir, DELDIR)); !os.IsNotExist(err) {
		t.Fatal("expected DELDIR to be cleaned up after recovery")
	}
}

func TestRecoverRollsBackFromBakdir(t *testing.T) {
	f, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	bak, err := f.BeginBackup()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bak, "BBP.dir"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	var seen []string
	if err := f.Recover(func(rel, src string, isKill bool) error {
		seen = append(seen, rel)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != "BBP.dir" {
		t.Fatalf("expected rollback to visit BBP.dir, got %v", seen)
	}
	if _, err := os.Stat(filepath.Join(f.Dir, BAKDIR)); !os.IsNotExist(err) {
		t.Fatal("expected BAKDIR to be cleaned up after rollback")
	}
}

func TestSubCommitMergesIntoLiveTree(t *testing.T) {
	f, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dir, err := f.BeginSubCommit()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.tail"), []byte("appended"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.FinishSubCommit(dir); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(f.Dir, "new.tail"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "appended" {
		t.Fatalf("expected appended, got %q", data)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("expected sub-commit staging dir to be removed")
	}
}

func TestRecoverFinishesOrphanedSubCommit(t *testing.T) {
	f, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dir, err := f.BeginSubCommit()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "orphan.tail"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Simulate a crash before FinishSubCommit ran.
	if err := f.Recover(func(rel, src string, isKill bool) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(f.Dir, "orphan.tail")); err != nil {
		t.Fatalf("expected orphaned sub-commit to be merged on recovery: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.Dir, SUBDIR)); !os.IsNotExist(err) {
		t.Fatal("expected SUBDIR to be cleaned up after recovery")
	}
}
