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
	"fmt"
	"os"
	"path/filepath"

	"github.com/monetkit/gdk/farm"
)

// Commit implements a six-stage commit protocol over a single farm:
// prelude (open BAKDIR), backup (copy every live file a
// write will replace or remove into BAKDIR, so a crash before the
// switch can always roll back), write (new heap files land via
// write-then-rename, deletions happen immediately), write-directory
// (BBP.dir itself, MAC'd per directory.go, written into BAKDIR then
// copied live), atomic switch (BAKDIR -> DELDIR rename, the point of
// no return), and epilogue (remove DELDIR).
type Commit struct {
	Farm   *farm.Farm
	MACKey []byte
}

// writeFile describes one file this commit will install, replacing
// whatever (if anything) currently lives at RelPath.
type writeFile struct {
	RelPath string // path relative to the farm root
	Data    []byte
	Kill    bool // true: delete RelPath instead of writing Data
}

// Run executes the full protocol: back up every RelPath that already
// exists, write the new files, persist records as the new BBP.dir,
// and atomically switch over.
func (c *Commit) Run(records []Record, writes []writeFile) error {
	bak, err := c.Farm.BeginBackup()
	if err != nil {
		return fmt.Errorf("commit: prelude: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(bak)
		}
	}()

	for _, w := range writes {
		live := filepath.Join(c.Farm.Dir, w.RelPath)
		if _, err := os.Stat(live); err == nil {
			backup := filepath.Join(bak, w.RelPath)
			if err := os.MkdirAll(filepath.Dir(backup), 0o755); err != nil {
				return fmt.Errorf("commit: backup: %w", err)
			}
			if err := copyFile(live, backup); err != nil {
				return fmt.Errorf("commit: backup: %w", err)
			}
		}
	}

	for _, w := range writes {
		target := filepath.Join(c.Farm.Dir, w.RelPath)
		if w.Kill {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("commit: write: %w", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("commit: write: %w", err)
		}
		if err := os.WriteFile(target+".new", w.Data, 0o644); err != nil {
			return fmt.Errorf("commit: write: %w", err)
		}
		if err := os.Rename(target+".new", target); err != nil {
			return fmt.Errorf("commit: write: %w", err)
		}
	}

	dirPath := filepath.Join(bak, "BBP.dir")
	if err := SaveDirectory(dirPath, c.MACKey, records); err != nil {
		return fmt.Errorf("commit: write-directory: %w", err)
	}
	liveDir := filepath.Join(c.Farm.Dir, "BBP.dir")
	if err := copyFile(dirPath, liveDir); err != nil {
		return fmt.Errorf("commit: write-directory: %w", err)
	}

	if err := c.Farm.CommitSwitch(); err != nil {
		return fmt.Errorf("commit: atomic switch: %w", err)
	}
	committed = true

	if err := c.Farm.FinishEpilogue(); err != nil {
		return fmt.Errorf("commit: epilogue: %w", err)
	}
	return nil
}

// Recover runs the farm's startup recovery procedure: an interrupted
// commit is rolled forward if
// DELDIR survived (its presence means the atomic rename already
// happened) or rolled back from BAKDIR otherwise.
func (c *Commit) Recover() error {
	return c.Farm.Recover(func(rel, src string, isKill bool) error {
		if isKill {
			target := filepath.Join(c.Farm.Dir, rel[:len(rel)-len(".kill")])
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		}
		return copyFile(src, filepath.Join(c.Farm.Dir, rel))
	})
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
