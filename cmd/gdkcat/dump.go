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

	"github.com/monetkit/gdk"
	"github.com/monetkit/gdk/atom"
)

// entry point for 'gdkcat dump <farm-dir> <id>'
func dump(dir string, id int64) {
	records, err := gdk.ReadDirectory(dir)
	if err != nil {
		exitf("reading %s: %s\n", dir, err)
	}
	for _, r := range records {
		if r.ID != id {
			continue
		}
		reg := atom.Builtins()
		name := "?"
		if ops := reg.Lookup(atom.ID(r.AtomID)); ops != nil {
			name = ops.Name
		}
		fmt.Printf("id:         %d\n", r.ID)
		if r.Name != "" {
			fmt.Printf("name:       %s\n", r.Name)
		}
		fmt.Printf("basename:   %s\n", r.Basename)
		fmt.Printf("atom:       %s (%d)\n", name, r.AtomID)
		fmt.Printf("width:      %d\n", r.Width)
		fmt.Printf("count:      %d\n", r.Count)
		fmt.Printf("sorted:     %v\n", r.Sorted)
		fmt.Printf("revsorted:  %v\n", r.RevSorted)
		fmt.Printf("key:        %v\n", r.Key)
		fmt.Printf("persistent: %v\n", r.Persistent)
		if !r.CommitTime.IsZero() {
			fmt.Printf("committed:  %s\n", r.CommitTime)
		}
		return
	}
	exitf("no record for id %d in %s\n", id, dir)
}
