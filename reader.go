// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmdb reads MMDB-format IP databases: open once, then look up
// addresses from as many goroutines as you like.  Every lookup is a bitwise
// walk of the file's binary search tree followed by a decode of the record
// it points at; cost is proportional to the address's bit length, not the
// database's size.
package mmdb

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/mmdb-go/mmdb/decode"
	"github.com/mmdb-go/mmdb/internal/store"
)

// FileMode picks how Open makes the database's bytes addressable.  Lookup
// results are identical either way.
type FileMode int

const (
	// ModeMMap maps the database into virtual memory (the default).  This
	// usually performs like an in-memory load without paying for a full
	// copy of the file up front.
	ModeMMap FileMode = iota
	// ModeInMemory loads the whole database onto the heap at open.
	ModeInMemory
)

type config struct {
	mode   FileMode
	logger zerolog.Logger
}

type Option func(*config)

// WithFileMode selects between mapping the database and loading it fully
// into memory.
func WithFileMode(mode FileMode) Option {
	return func(c *config) {
		c.mode = mode
	}
}

// WithLogger injects a handle for debug tracing of opens and lookups.  The
// default is a no-op logger; nothing in the lookup path reads ambient
// process state.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Reader answers point lookups against one open database.  All fields are
// immutable after Open, so a single Reader is safe for concurrent use
// without locks.  Close invalidates the Reader; the caller must guarantee
// no Get is in flight or issued concurrently with or after Close.
type Reader struct {
	store    *store.Store
	buffer   []byte
	metadata *Metadata
	decoder  *decode.Decoder
	logger   zerolog.Logger
}

// Open opens the database at path.
func Open(path string, opts ...Option) (*Reader, error) {
	cfg := config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	storeMode := store.ModeMMap
	if cfg.mode == ModeInMemory {
		storeMode = store.ModeInMemory
	}
	s, err := store.Open(path, storeMode)
	if err != nil {
		return nil, err
	}
	r, err := newReader(s, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return r, nil
}

// FromBytes opens a database held in a caller-owned buffer, which must stay
// unmodified for the Reader's lifetime.  WithFileMode has no effect here.
func FromBytes(data []byte, opts ...Option) (*Reader, error) {
	cfg := config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newReader(store.FromBytes(data), cfg)
}

func newReader(s *store.Store, cfg config) (*Reader, error) {
	data := s.Bytes()

	metadataStart, err := findMetadataStart(data)
	if err != nil {
		return nil, err
	}

	metadataValue, _, err := decode.NewDecoder(data, 0).Decode(uint(metadataStart))
	if err != nil {
		return nil, fmt.Errorf("%w: metadata block: %v", ErrInvalidDatabase, err)
	}
	metadata, err := parseMetadata(metadataValue)
	if err != nil {
		return nil, err
	}
	if err := metadata.validate(metadataStart - len(metadataStartMarker)); err != nil {
		return nil, err
	}

	cfg.logger.Debug().
		Uint("node_count", metadata.NodeCount).
		Uint("record_size", metadata.RecordSize).
		Uint("ip_version", metadata.IPVersion).
		Str("database_type", metadata.DatabaseType).
		Int("metadata_start", metadataStart).
		Msg("opened database")

	return &Reader{
		store:    s,
		buffer:   data,
		metadata: metadata,
		decoder:  decode.NewDecoder(data, metadata.searchTreeSize+dataSectionSeparatorSize),
		logger:   cfg.logger,
	}, nil
}

// Get looks ip up in the database.  ok is false when the database simply has
// no record for the address; that is a normal outcome, not an error.
func (r *Reader) Get(ip net.IP) (value decode.Value, ok bool, err error) {
	address := []byte(ip)
	if v4 := ip.To4(); v4 != nil {
		address = v4
	}
	switch len(address) {
	case 4:
	case 16:
		if r.metadata.IPVersion == 4 {
			return decode.Value{}, false, fmt.Errorf(
				"%w: cannot look up an IPv6 address in an IPv4-only database", ErrUsage)
		}
	default:
		return decode.Value{}, false, fmt.Errorf(
			"%w: address must be 4 or 16 bytes, got %d", ErrUsage, len(address))
	}

	pointer, found, err := r.findAddressInTree(address)
	if err != nil {
		return decode.Value{}, false, err
	}
	if !found {
		r.logger.Trace().IPAddr("ip", ip).Msg("no record")
		return decode.Value{}, false, nil
	}
	return r.resolveDataPointer(pointer)
}

// resolveDataPointer turns a terminal record into an absolute data-section
// offset and decodes the value there.  The record came from an untrusted
// file, so the offset is checked before the decoder touches it.
func (r *Reader) resolveDataPointer(pointer uint) (decode.Value, bool, error) {
	resolved := pointer - r.metadata.NodeCount + r.metadata.searchTreeSize
	if resolved >= uint(len(r.buffer)) {
		return decode.Value{}, false, fmt.Errorf(
			"%w: data pointer %d resolves past end of file (%d >= %d)",
			ErrInvalidDatabase, pointer, resolved, len(r.buffer))
	}

	r.logger.Trace().
		Uint("pointer", pointer).
		Uint("resolved", resolved).
		Msg("resolved data pointer")

	value, _, err := r.decoder.Decode(resolved)
	if err != nil {
		return decode.Value{}, false, fmt.Errorf("%w: record at %d: %v", ErrInvalidDatabase, resolved, err)
	}
	return value, true, nil
}

// Metadata returns the decoded metadata block.
func (r *Reader) Metadata() Metadata {
	return *r.metadata
}

// Close releases the backing store.  See the Reader doc for the
// no-concurrent-lookups precondition.
func (r *Reader) Close() error {
	r.buffer = nil
	return r.store.Close()
}
