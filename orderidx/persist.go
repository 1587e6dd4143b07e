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

package orderidx

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Bytes encodes the index as a 3-OID header (version, count, stable)
// followed by the permutation, the same layout Save writes to disk
// and Commit's writeFile list carries for the ".orderidx" sidecar.
func (idx *Index) Bytes() []byte {
	buf := make([]byte, 24+len(idx.Perm)*8)
	binary.LittleEndian.PutUint64(buf[0:], uint64(idx.Version))
	binary.LittleEndian.PutUint64(buf[8:], uint64(idx.Count))
	stable := uint64(0)
	if idx.Stable {
		stable = 1
	}
	binary.LittleEndian.PutUint64(buf[16:], stable)
	for i, v := range idx.Perm {
		binary.LittleEndian.PutUint64(buf[24+i*8:], uint64(v))
	}
	return buf
}

// Save writes the index to path via Bytes.
func (idx *Index) Save(path string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, idx.Bytes(), 0o644); err != nil {
		return fmt.Errorf("orderidx: writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// Parse decodes an index previously encoded by Bytes.
func Parse(raw []byte) (*Index, error) {
	if len(raw) < 24 {
		return nil, fmt.Errorf("orderidx: buffer too short for header")
	}
	idx := &Index{
		Version: int32(binary.LittleEndian.Uint64(raw[0:])),
		Count:   int64(binary.LittleEndian.Uint64(raw[8:])),
		Stable:  binary.LittleEndian.Uint64(raw[16:]) == 1,
	}
	n := (len(raw) - 24) / 8
	if int64(n) != idx.Count {
		return nil, fmt.Errorf("orderidx: declared count %d, found %d", idx.Count, n)
	}
	idx.Perm = make([]OID, n)
	for i := range idx.Perm {
		idx.Perm[i] = OID(binary.LittleEndian.Uint64(raw[24+i*8:]))
	}
	return idx, nil
}

// Load reads an index previously written by Save.
func Load(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("orderidx: reading %s: %w", path, err)
	}
	idx, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("orderidx: %s: %w", path, err)
	}
	return idx, nil
}
