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

package column

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/monetkit/gdk/atom"
	"github.com/monetkit/gdk/heap"
)

// Load reconstructs a previously-committed column by reading its slot
// array (and, for variable-width atoms, its string heap) back from
// disk, then rescanning the slot-by-slot contents to rebuild the same
// property bits an equivalent sequence of Append/AppendStrings calls
// would have produced. count and width are the values recorded for
// this column in the last committed directory; TSeqBase is not
// recorded there, so a loaded oid column always comes back with
// TSeqBase == NilOID even if it was dense when saved.
func Load(a *atom.Ops, farmDir, basename string, cfg heap.Config, persist Persistence, count int64, width int32) (*Column, error) {
	c := &Column{
		Atom:        a,
		Order:       binary.LittleEndian,
		Width:       int(width),
		TSeqBase:    NilOID,
		MinPos:      -1,
		MaxPos:      -1,
		Access:      AccessAppend,
		Persistence: persist,
	}

	dataName := basename + ".tail"
	if a.Variable {
		dataName = basename + ".tail4"
	}
	c.Data = heap.New(farmDir, dataName, cfg)
	if err := c.Data.Load(count*int64(c.Width), ""); err != nil {
		return nil, fmt.Errorf("column: load: %w", err)
	}

	if a.Variable {
		vh := heap.New(farmDir, basename+".theap", cfg)
		info, err := os.Stat(vh.Path())
		if err != nil {
			return nil, fmt.Errorf("column: load: %w", err)
		}
		if err := vh.Load(info.Size(), ""); err != nil {
			return nil, fmt.Errorf("column: load: %w", err)
		}
		c.VHeap = &VarHeap{heap: vh, atom: a, offset: int(width), intern: make(map[string]int64)}
	}

	c.Count = count
	c.Capacity = count
	c.Inserted = count

	if a.Variable {
		c.rescanStringProperties()
	} else {
		c.rescanFixedProperties()
	}
	return c, nil
}
