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
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/monetkit/gdk/date"
	"golang.org/x/crypto/blake2b"
)

// dirMagic tags the directory format; dirVersion lets Load reject a
// file written by a newer, incompatible writer.
const (
	dirMagic   = "gdkdir"
	dirVersion = uint32(2)
)

// ErrBadDirectoryMAC and ErrDirectoryTooNew are the two ways a
// BBP.dir load can fail validation before any record is even parsed.
var (
	ErrBadDirectoryMAC = errors.New("pool: BBP.dir MAC mismatch")
	ErrDirectoryTooNew = errors.New("pool: BBP.dir format version newer than supported")
)

// Record is one BBP.dir entry: everything needed to reconstruct a
// slot's identity and column metadata without touching its heaps.
type Record struct {
	ID         int64
	Name       string
	Farm       string
	Basename   string
	AtomID     int32
	Width      int32
	Count      int64
	Sorted     bool
	RevSorted  bool
	Key        bool
	Persistent bool

	// CommitTime records when this record was folded into BBP.dir; the
	// compact date.Time representation avoids pulling a full time.Time's
	// monotonic-reading baggage into an on-disk format that round-trips
	// through bytes.
	CommitTime date.Time
}

// SaveDirectory writes BBP.dir atomically (write to a temp file in the
// same directory, fsync, rename) and MACs the payload with blake2b so
// a partially-written file is detected rather than silently loaded.
func SaveDirectory(path string, macKey []byte, records []Record) error {
	var body bytes.Buffer
	if err := binary.Write(&body, binary.LittleEndian, dirVersion); err != nil {
		return err
	}
	if err := binary.Write(&body, binary.LittleEndian, uint32(len(records))); err != nil {
		return err
	}
	for _, r := range records {
		if err := writeRecord(&body, r); err != nil {
			return err
		}
	}

	mac, err := blake2b.New256(macKey)
	if err != nil {
		return fmt.Errorf("pool: directory MAC init: %w", err)
	}
	mac.Write(body.Bytes())
	sum := mac.Sum(nil)

	tmp := path + ".new"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("pool: creating %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(dirMagic); err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(sum); err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadDirectory reads and MAC-verifies BBP.dir.
func LoadDirectory(path string, macKey []byte) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < len(dirMagic)+32 {
		return nil, fmt.Errorf("pool: %s: truncated directory", path)
	}
	if string(raw[:len(dirMagic)]) != dirMagic {
		return nil, fmt.Errorf("pool: %s: bad magic", path)
	}
	raw = raw[len(dirMagic):]
	wantSum := raw[:32]
	body := raw[32:]

	mac, err := blake2b.New256(macKey)
	if err != nil {
		return nil, fmt.Errorf("pool: directory MAC init: %w", err)
	}
	mac.Write(body)
	gotSum := mac.Sum(nil)
	if !bytes.Equal(wantSum, gotSum) {
		return nil, ErrBadDirectoryMAC
	}

	r := bytes.NewReader(body)
	var version, count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version > dirVersion {
		return nil, ErrDirectoryTooNew
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	records := make([]Record, count)
	for i := range records {
		rec, err := readRecord(r)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}

func writeRecord(w io.Writer, r Record) error {
	var commitNS int64
	if !r.CommitTime.IsZero() {
		commitNS = r.CommitTime.UnixNano()
	}
	fields := []any{
		r.ID, r.AtomID, r.Width, r.Count,
		packBools(r.Sorted, r.RevSorted, r.Key, r.Persistent),
		commitNS,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return writeStrings(w, r.Name, r.Farm, r.Basename)
}

func readRecord(r io.Reader) (Record, error) {
	var rec Record
	var flags uint8
	var commitNS int64
	fields := []any{&rec.ID, &rec.AtomID, &rec.Width, &rec.Count}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return rec, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return rec, err
	}
	if err := binary.Read(r, binary.LittleEndian, &commitNS); err != nil {
		return rec, err
	}
	rec.Sorted, rec.RevSorted, rec.Key, rec.Persistent = unpackBools(flags)
	if commitNS != 0 {
		rec.CommitTime = date.Unix(0, commitNS)
	}
	var err error
	rec.Name, rec.Farm, rec.Basename, err = readStrings(r)
	return rec, err
}

func packBools(a, b, c, d bool) uint8 {
	var v uint8
	if a {
		v |= 1
	}
	if b {
		v |= 2
	}
	if c {
		v |= 4
	}
	if d {
		v |= 8
	}
	return v
}

func unpackBools(v uint8) (a, b, c, d bool) {
	return v&1 != 0, v&2 != 0, v&4 != 0, v&8 != 0
}

func writeStrings(w io.Writer, ss ...string) error {
	for _, s := range ss {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(r io.Reader) (string, string, string, error) {
	out := make([]string, 3)
	for i := range out {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return "", "", "", err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", "", "", err
		}
		out[i] = string(buf)
	}
	return out[0], out[1], out[2], nil
}
