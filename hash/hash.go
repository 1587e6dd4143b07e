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

// Package hash implements the open-addressed bucket index that
// accelerates point lookup on a column: a bucket array giving the
// head of each chain and a parallel link array threading collisions,
// both at a configurable slot width.
package hash

import (
	"fmt"

	"github.com/dchest/siphash"
)

// Width is the byte width of the bucket/link arrays: 2, 4, or 8.
type Width int

const (
	Width2 Width = 2
	Width4 Width = 4
	Width8 Width = 8
)

// nilFor returns the sentinel "end of chain" / "empty bucket" value
// for a given width: the all-ones value.
func nilFor(w Width) uint64 {
	switch w {
	case Width2:
		return 0xffff
	case Width4:
		return 0xffffffff
	case Width8:
		return 0xffffffffffffffff
	}
	panic("hash: invalid width")
}

// Index is a hash index over one column.
type Index struct {
	k0, k1 uint64 // siphash key passed to New; a pool hands every index the same random pair

	width  Width
	nbucket int
	mask    uint64

	bucket []uint64 // len == nbucket; head of chain or nilFor(width)
	link   []uint64 // len == row count; next in chain or nilFor(width)

	rowCount  int64
	unique    int64
	nonEmpty  int64
	persisted bool

	// HashRow recomputes a row's hash from the owning column; used by
	// growBucket to repartition an existing chain since the index
	// does not itself cache per-row hash values.
	HashRow func(row int64) uint64
}

// New creates an empty index sized for an estimated ncand rows. When
// sample is non-nil, it tries ncand/64, /16, /4, and ncand on the
// first 25% of sample, keeping the first size that yields no more
// than mask/8 non-empty buckets.
func New(k0, k1 uint64, ncand int64, width Width, sample func(i int64) uint64) *Index {
	nbucket := sizeBuckets(ncand, sample)
	if width == Width2 && nbucket > 256 {
		nbucket = 256
	}
	idx := &Index{
		k0: k0, k1: k1,
		width:   width,
		nbucket: nbucket,
		mask:    uint64(nbucket - 1),
		bucket:  make([]uint64, nbucket),
	}
	nilv := nilFor(width)
	for i := range idx.bucket {
		idx.bucket[i] = nilv
	}
	return idx
}

func sizeBuckets(ncand int64, sample func(i int64) uint64) int {
	if ncand <= 0 {
		return 1
	}
	if sample == nil {
		return nextPow2(ncand)
	}
	probe := ncand / 4 // "first 25%"
	if probe == 0 {
		probe = ncand
	}
	for _, div := range []int64{64, 16, 4, 1} {
		n := ncand / div
		if n < 1 {
			n = 1
		}
		nb := nextPow2(n)
		mask := uint64(nb - 1)
		seen := make(map[uint64]bool, nb)
		for i := int64(0); i < probe; i++ {
			seen[sample(i)&mask] = true
		}
		if int64(len(seen)) <= int64(nb)/8 {
			return nb
		}
	}
	return nextPow2(ncand)
}

func nextPow2(n int64) int {
	p := 1
	for int64(p) < n {
		p <<= 1
	}
	if p < 1 {
		p = 1
	}
	return p
}

// Hash computes the siphash bucket hash of v, keyed per-Index.
func (idx *Index) Hash(v []byte) uint64 {
	return siphash.Hash(idx.k0, idx.k1, v)
}

// bucketOf addresses h with one bit more than mask, falling back to
// mask when that lands on a bucket growBucket has not split off yet.
func (idx *Index) bucketOf(h uint64) uint64 {
	b := h & (idx.mask<<1 | 1)
	if b >= uint64(idx.nbucket) {
		b = h & idx.mask
	}
	return b
}

// Insert adds row i (its hash value h, already computed by Hash) to
// the index.
func (idx *Index) Insert(i int64, h uint64) error {
	if i != idx.rowCount {
		return fmt.Errorf("hash: insert must append at row %d, got %d", idx.rowCount, i)
	}
	b := idx.bucketOf(h)
	head := idx.bucket[b]
	if head == nilFor(idx.width) {
		idx.nonEmpty++
	}
	idx.link = append(idx.link, head)
	idx.bucket[b] = uint64(i)
	idx.rowCount++
	if idx.loadFactor() > 7.0/8 {
		idx.growBucket()
	}
	return nil
}

func (idx *Index) loadFactor() float64 {
	return float64(idx.rowCount) / float64(idx.nbucket)
}

// growBucket splits a single bucket: the
// bucket count is incremented by one, and the entries of bucket `old`
// (old = new & mask1, the mask before growth) are repartitioned by the
// high bit of their hash into old and new. Width is doubled once the
// bucket count approaches the current width's sentinel range.
func (idx *Index) growBucket() {
	oldMask := idx.mask
	newBucketIdx := idx.nbucket
	oldBucketIdx := newBucketIdx & int(oldMask)

	nilv := nilFor(idx.width)
	idx.bucket = append(idx.bucket, nilv)
	idx.nbucket++
	if idx.nbucket&(idx.nbucket-1) == 0 {
		// crossed a power of two: mask grows too.
		idx.mask = uint64(idx.nbucket - 1)
	}

	var oldChain, newChain []int64
	for cur := idx.bucket[oldBucketIdx]; cur != nilv; {
		row := int64(cur)
		next := idx.link[row]
		h := idx.rehash(row)
		if h&(oldMask+1) != 0 {
			newChain = append(newChain, row)
		} else {
			oldChain = append(oldChain, row)
		}
		cur = next
	}
	idx.bucket[oldBucketIdx] = nilv
	idx.bucket[newBucketIdx] = nilv
	relink := func(rows []int64, headBucket int) {
		head := nilv
		for _, r := range rows {
			idx.link[r] = head
			head = uint64(r)
		}
		idx.bucket[headBucket] = head
	}
	relink(oldChain, oldBucketIdx)
	relink(newChain, newBucketIdx)

	maxRows := nilFor(idx.width) - 1
	if uint64(idx.nbucket) >= maxRows/2 && idx.width < Width8 {
		idx.widen()
	}
}

func (idx *Index) rehash(row int64) uint64 {
	if idx.HashRow != nil {
		return idx.HashRow(row)
	}
	return uint64(row)
}

func (idx *Index) widen() {
	newWidth := Width4
	if idx.width == Width4 {
		newWidth = Width8
	}
	idx.width = newWidth
}

// Lookup returns the rows in v's chain via yield, stopping early if
// yield returns false.
func (idx *Index) Lookup(h uint64, yield func(row int64) bool) {
	nilv := nilFor(idx.width)
	b := idx.bucketOf(h)
	for cur := idx.bucket[b]; cur != nilv; {
		if !yield(int64(cur)) {
			return
		}
		cur = idx.link[cur]
	}
}

// Delete removes row i from its chain; the caller is responsible for
// compacting row indices afterward to match the column's
// move-last-into-hole semantics.
func (idx *Index) Delete(h uint64, i int64) {
	nilv := nilFor(idx.width)
	b := idx.bucketOf(h)
	cur := idx.bucket[b]
	if cur == uint64(i) {
		idx.bucket[b] = idx.link[i]
		return
	}
	for cur != nilv {
		next := idx.link[cur]
		if next == uint64(i) {
			idx.link[cur] = idx.link[i]
			return
		}
		cur = next
	}
}

// Relink moves row i from its current chain to the chain for newHash,
// without changing rowCount: used to keep an index consistent with an
// in-place overwrite (column.Replace), which updates an existing row
// rather than appending a new one the way Insert expects.
func (idx *Index) Relink(oldHash, newHash uint64, i int64) {
	idx.Delete(oldHash, i)
	nilv := nilFor(idx.width)
	b := idx.bucketOf(newHash)
	if idx.bucket[b] == nilv {
		idx.nonEmpty++
	}
	idx.link[i] = idx.bucket[b]
	idx.bucket[b] = uint64(i)
}

// Move reassigns row index from to to within the chain for hash h,
// without changing rowCount: used when column.Delete compacts a
// removed slot by copying the last row's bytes into the hole, so the
// value's chain membership needs to follow its new row index even
// though the value itself never changed.
func (idx *Index) Move(h uint64, from, to int64) {
	idx.Delete(h, from)
	nilv := nilFor(idx.width)
	b := idx.bucketOf(h)
	if idx.bucket[b] == nilv {
		idx.nonEmpty++
	}
	idx.link[to] = idx.bucket[b]
	idx.bucket[b] = uint64(to)
}

// Truncate drops the last row from the index's bookkeeping, for use
// after column.Delete shrinks Count by one; the caller must already
// have removed or moved that row's chain membership via Delete/Move.
func (idx *Index) Truncate() {
	if idx.rowCount == 0 {
		return
	}
	idx.rowCount--
	idx.link = idx.link[:idx.rowCount]
}

// RowCount, NonEmptyBuckets, NBucket and Width report the index's
// current counters and shape.
func (idx *Index) RowCount() int64      { return idx.rowCount }
func (idx *Index) NonEmptyBuckets() int64 { return idx.nonEmpty }
func (idx *Index) NBucket() int         { return idx.nbucket }
func (idx *Index) Width() Width         { return idx.width }
