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

import "golang.org/x/exp/slices"

// CandidateList is a dense OID range optionally paired with a small
// set of exceptions that must be excluded. It is represented as a
// void column conceptually (TypeOID, dense, tseqbase set); this type
// captures just the shape that column.Slice and Append need.
type CandidateList struct {
	Lo, Hi     OID
	Exceptions []OID
}

// NewCandidateList builds a dense [lo,hi) list with the given
// exceptions, sorted once so Excludes is a binary search rather than a
// linear scan.
func NewCandidateList(lo, hi OID, exceptions []OID) *CandidateList {
	sorted := append([]OID(nil), exceptions...)
	slices.Sort(sorted)
	return &CandidateList{Lo: lo, Hi: hi, Exceptions: sorted}
}

// Excludes reports whether o is named as an exception.
func (cl *CandidateList) Excludes(o OID) bool {
	if cl == nil {
		return false
	}
	_, ok := slices.BinarySearch(cl.Exceptions, o)
	return ok
}

// Len returns the number of rows the candidate list selects.
func (cl *CandidateList) Len() int64 {
	if cl == nil {
		return 0
	}
	return int64(cl.Hi-cl.Lo) - int64(len(cl.Exceptions))
}

// Dense reports whether the list has no exceptions, i.e. it can be
// represented purely as a range and participate in a zero-copy Slice.
func (cl *CandidateList) Dense() bool {
	return cl == nil || len(cl.Exceptions) == 0
}
