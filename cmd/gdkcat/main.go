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

// Command gdkcat inspects a farm directory without going through a
// live Pool: dump prints one column's BBP.dir record, verify
// cross-checks every record against the files actually on disk, and
// find lists registered names matching a glob pattern.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

var dashv bool

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func logf(f string, args ...interface{}) {
	if !dashv {
		return
	}
	if f[len(f)-1] != '\n' {
		f += "\n"
	}
	fmt.Fprintf(os.Stderr, f, args...)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "dump":
		if len(args) != 3 {
			exitf("usage: dump <farm-dir> <id>\n")
		}
		id, err := strconv.ParseInt(args[2], 0, 64)
		if err != nil {
			exitf("bad id %q: %s\n", args[2], err)
		}
		dump(args[1], id)
	case "verify":
		if len(args) != 2 {
			exitf("usage: verify <farm-dir>\n")
		}
		verify(args[1])
	case "find":
		if len(args) != 3 {
			exitf("usage: find <farm-dir> <pattern>\n")
		}
		find(args[1], args[2])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "    %s [-v] dump <farm-dir> <id>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        print a column's BBP.dir record\n")
	fmt.Fprintf(os.Stderr, "    %s [-v] verify <farm-dir>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        check BBP.dir against the files on disk\n")
	fmt.Fprintf(os.Stderr, "    %s [-v] find <farm-dir> <pattern>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        list registered names matching a glob pattern\n")
	flag.Usage()
	os.Exit(1)
}
