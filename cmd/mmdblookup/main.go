// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// mmdblookup resolves IP addresses against an MMDB database file and prints
// each record as JSON.
//
//	mmdblookup -db GeoLite2-City.mmdb [-mode mmap|memory] [-verbose] ip [ip...]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog"

	"github.com/mmdb-go/mmdb"
)

func main() {
	dbPath := flag.String("db", "", "path to the MMDB database file")
	mode := flag.String("mode", "mmap", "how to open the database: mmap or memory")
	verbose := flag.Bool("verbose", false, "trace opens and lookups to stderr")
	flag.Parse()

	if *dbPath == "" || flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s -db file [-mode mmap|memory] [-verbose] ip [ip...]\n", os.Args[0])
		os.Exit(2)
	}

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.TraceLevel).
			With().Timestamp().Logger()
	}

	opts := []mmdb.Option{mmdb.WithLogger(logger)}
	switch *mode {
	case "mmap":
	case "memory":
		opts = append(opts, mmdb.WithFileMode(mmdb.ModeInMemory))
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q: want mmap or memory\n", *mode)
		os.Exit(2)
	}

	r, err := mmdb.Open(*dbPath, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %s\n", *dbPath, err)
		os.Exit(1)
	}
	defer func() {
		_ = r.Close()
	}()

	exitCode := 0
	for _, arg := range flag.Args() {
		ip := net.ParseIP(arg)
		if ip == nil {
			fmt.Fprintf(os.Stderr, "%s: not an IP address\n", arg)
			exitCode = 1
			continue
		}
		value, ok, err := r.Get(ip)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", arg, err)
			exitCode = 1
			continue
		}
		if !ok {
			fmt.Printf("%s: no record\n", arg)
			continue
		}
		out, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", arg, err)
			exitCode = 1
			continue
		}
		fmt.Printf("%s: %s\n", arg, out)
	}
	os.Exit(exitCode)
}
