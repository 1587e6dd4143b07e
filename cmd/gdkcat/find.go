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
	"sort"

	"github.com/monetkit/gdk"
	"github.com/monetkit/gdk/fsutil"
)

// entry point for 'gdkcat find <farm-dir> <pattern>'. pattern uses
// fsutil's glob syntax ("orders.*", "{table}.meta") against each
// record's logical Name; records with no registered name never match.
func find(dir, pattern string) {
	records, err := gdk.ReadDirectory(dir)
	if err != nil {
		exitf("reading %s: %s\n", dir, err)
	}
	var m fsutil.Matcher
	var names []string
	matched := map[string]int64{}
	for _, r := range records {
		if r.Name == "" {
			continue
		}
		ok, err := m.Match(pattern, r.Name)
		if err != nil {
			exitf("bad pattern %q: %s\n", pattern, err)
		}
		if ok {
			names = append(names, r.Name)
			matched[r.Name] = r.ID
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%d\t%s\n", matched[name], name)
	}
}
