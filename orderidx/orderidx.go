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

// Package orderidx implements the order index: a permutation array
// giving the ascending sort order of a column, with persistence and
// k-way merge of partial indexes produced by parallel sort shards.
package orderidx

import "github.com/monetkit/gdk/internal/minheap"

// OID mirrors column.OID without importing package column (orderidx
// stays a leaf package consumed by column, hash, and sortutil alike).
type OID int64

// Index is a persisted permutation: Perm[i] is the OID of the row that
// sorts into position i.
type Index struct {
	Version int32
	Count   int64
	Stable  bool
	Perm    []OID
}

// New wraps a permutation slice produced by a sort.
func New(perm []OID, stable bool) *Index {
	return &Index{Version: 1, Count: int64(len(perm)), Stable: stable, Perm: perm}
}

// stream is one input to the k-way merge: a partial order index plus
// the comparator needed to read the value it names.
type stream struct {
	idx    *Index
	pos    int
	value  func(oid OID) []byte
}

func (s *stream) done() bool { return s.pos >= len(s.idx.Perm) }
func (s *stream) oid() OID   { return s.idx.Perm[s.pos] }

// Merge combines k partial order indexes, each covering a disjoint row
// range, into a single combined index. cmp
// compares the decoded values named by two OIDs (ascending). For k=2
// this degenerates to an ordinary sort-merge; for k>2 a min-heap keyed
// on each stream's current value drives the merge. The result's Stable
// flag is the AND of every input's.
func Merge(parts []*Index, value func(oid OID) []byte, cmp func(a, b []byte) int) *Index {
	if len(parts) == 0 {
		return New(nil, true)
	}
	streams := make([]*stream, 0, len(parts))
	total := 0
	stable := true
	for _, p := range parts {
		if len(p.Perm) == 0 {
			continue
		}
		streams = append(streams, &stream{idx: p, value: value})
		total += len(p.Perm)
		stable = stable && p.Stable
	}
	out := make([]OID, 0, total)
	if len(streams) == 0 {
		return New(out, stable)
	}
	if len(streams) == 1 {
		return New(append(out, streams[0].idx.Perm...), stable)
	}
	less := func(a, b *stream) bool {
		return cmp(value(a.oid()), value(b.oid())) < 0
	}
	minheap.Init(streams, less)
	for len(streams) > 0 {
		head := streams[0]
		out = append(out, head.oid())
		head.pos++
		if head.done() {
			streams[0] = streams[len(streams)-1]
			streams = streams[:len(streams)-1]
			if len(streams) > 0 {
				minheap.Fix(streams, 0, less)
			}
		} else {
			minheap.Fix(streams, 0, less)
		}
	}
	return New(out, stable)
}
