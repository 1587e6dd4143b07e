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
	"github.com/monetkit/gdk/column"
	"github.com/monetkit/gdk/orderidx"
)

// Sort orders id's column in place via column.Sort, fixing groupID
// alongside it when groupID is non-zero. When the column is
// persistent and ungrouped, the resulting order index is cached on
// the slot for Commit to persist opportunistically; a hash index
// built by EnsureHash is dropped rather than kept, since a physical
// reorder invalidates every row index it references and rebuilding
// from the new layout is cheaper than trying to relink it in place.
func (p *Pool) Sort(id int64, orderIn []column.OID, groupID int64, reverse, nilsLast, stable bool) (*orderidx.Index, error) {
	col, err := p.Fix(id)
	if err != nil {
		return nil, err
	}
	defer p.Unfix(id)

	var group *column.Column
	if groupID != 0 {
		group, err = p.Fix(groupID)
		if err != nil {
			return nil, err
		}
		defer p.Unfix(groupID)
	}

	idx, err := col.Sort(orderIn, group, reverse, nilsLast, stable)
	if err != nil {
		return nil, err
	}
	p.MarkDirty(id)
	if group != nil {
		p.MarkDirty(groupID)
	}

	s := p.slotFor(id)
	s.mu.Lock()
	if s.status&statusPersistent != 0 && group == nil {
		s.order = idx
		s.orderDirty = true
	}
	s.hashIdx = nil
	s.mu.Unlock()

	return idx, nil
}
