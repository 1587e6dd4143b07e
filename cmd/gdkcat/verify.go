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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/monetkit/gdk"
	"github.com/monetkit/gdk/atom"
	"github.com/monetkit/gdk/farm"
)

// entry point for 'gdkcat verify <farm-dir>'
func verify(dir string) {
	var anyErr bool
	report := func(f string, args ...interface{}) {
		anyErr = true
		fmt.Fprintf(os.Stderr, f, args...)
	}

	for _, staging := range []string{farm.BAKDIR, farm.DELDIR, farm.SUBDIR} {
		if fi, err := os.Stat(filepath.Join(dir, staging)); err == nil && fi.IsDir() {
			report("warning: %s left behind by an interrupted commit; run recovery before trusting this farm\n", staging)
		}
	}

	records, err := gdk.ReadDirectory(dir)
	if err != nil {
		exitf("reading %s: %s\n", dir, err)
	}
	logf("%d records in %s/BBP.dir\n", len(records), dir)

	reg := atom.Builtins()
	seen := make(map[int64]bool, len(records))
	for _, r := range records {
		if seen[r.ID] {
			report("id %d: duplicate record\n", r.ID)
		}
		seen[r.ID] = true

		ops := reg.Lookup(atom.ID(r.AtomID))
		if ops == nil {
			report("id %d: unknown atom %d\n", r.ID, r.AtomID)
			continue
		}

		var files []string
		if ops.Variable {
			files = []string{r.Basename + ".tail4", r.Basename + ".theap"}
		} else {
			files = []string{r.Basename + ".tail"}
		}
		for _, rel := range files {
			path := filepath.Join(dir, rel)
			fi, err := os.Stat(path)
			if err != nil {
				report("id %d: %s: %s\n", r.ID, rel, err)
				continue
			}
			logf("id %d: %s: %d bytes\n", r.ID, rel, fi.Size())
		}
		if !ops.Variable {
			if fi, err := statSize(dir, r.Basename+".tail"); err == nil {
				if want := r.Count * int64(r.Width); fi < want {
					report("id %d: %s.tail is %d bytes, short of count*width=%d\n", r.ID, r.Basename, fi, want)
				}
			}
		}
	}
	if anyErr {
		os.Exit(1)
	}
}

func statSize(dir, rel string) (int64, error) {
	fi, err := os.Stat(filepath.Join(dir, rel))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
