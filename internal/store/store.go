// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package store exposes a database file as an immutable byte range.  All
// reads are absolute-offset slices of that range; there is no cursor and no
// shared mutable state, so one Store may serve any number of goroutines.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// Mode picks how the file's bytes are made addressable.  It is a
// performance/resource trade-off only; reads behave identically either way.
type Mode int

const (
	// ModeMMap maps the file into the address space (the default).
	ModeMMap Mode = iota
	// ModeInMemory reads the whole file onto the heap at open.
	ModeInMemory
)

var errEmptyFile = errors.New("file is empty")

// Store is an immutable-after-open view of the database bytes.  Close
// invalidates the view; the caller must not issue or have in-flight reads
// concurrently with or after Close.
type Store struct {
	data     []byte
	mapped   mmap.MMap
	isClosed atomic.Bool
}

func Open(path string, mode Mode) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	stats, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	size := stats.Size()
	if size == 0 {
		// mmapping an empty file fails with EINVAL; reject it up front
		return nil, fmt.Errorf("%s: %w", path, errEmptyFile)
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("%s: file too large to address (%d bytes)", path, size)
	}

	switch mode {
	case ModeInMemory:
		data := make([]byte, size)
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, fmt.Errorf("io.ReadFull(%s): %w", path, err)
		}
		return &Store{data: data}, nil
	case ModeMMap:
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("mmap.Map(%s): %w", path, err)
		}
		if err := unix.Madvise(m, unix.MADV_RANDOM); err != nil {
			_ = m.Unmap()
			return nil, fmt.Errorf("madvise: %w", err)
		}
		return &Store{data: m, mapped: m}, nil
	default:
		return nil, fmt.Errorf("unknown open mode %d", mode)
	}
}

// FromBytes wraps a caller-owned buffer.  The caller must not mutate it for
// the life of the Store.
func FromBytes(data []byte) *Store {
	return &Store{data: data}
}

// Bytes returns the full immutable byte range.  Consumers slice it with
// their own bounds checks.
func (s *Store) Bytes() []byte {
	return s.data
}

func (s *Store) Len() int {
	return len(s.data)
}

// Close releases the mapping (or drops the heap copy).  Safe to call twice.
func (s *Store) Close() error {
	if s.isClosed.Swap(true) {
		return nil
	}
	mapped := s.mapped
	s.data = nil
	s.mapped = nil
	if mapped != nil {
		if err := mapped.Unmap(); err != nil {
			return fmt.Errorf("munmap: %w", err)
		}
	}
	return nil
}
