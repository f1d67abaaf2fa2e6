// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mmdb

import (
	"bytes"
	"fmt"

	"github.com/mmdb-go/mmdb/decode"
)

const dataSectionSeparatorSize = 16

// metadataStartMarker sits immediately before the metadata block, near the
// end of the file.  The marker bytes can in principle recur inside record
// data, so only the occurrence closest to end-of-file is authoritative.
var metadataStartMarker = []byte("\xab\xcd\xefMaxMind.com")

// findMetadataStart returns the offset at which the metadata block begins,
// i.e. the first byte past the rightmost occurrence of the marker.
func findMetadataStart(data []byte) (int, error) {
	idx := bytes.LastIndex(data, metadataStartMarker)
	if idx == -1 {
		return 0, fmt.Errorf("%w: no metadata marker found; is this an MMDB file?", ErrInvalidDatabase)
	}
	return idx + len(metadataStartMarker), nil
}

// Metadata holds the decoded metadata block.  NodeCount, RecordSize and
// IPVersion govern the search tree's layout; the rest is descriptive.  All
// fields are fixed for the lifetime of an open database.
type Metadata struct {
	NodeCount                uint
	RecordSize               uint
	IPVersion                uint
	BinaryFormatMajorVersion uint
	BinaryFormatMinorVersion uint
	BuildEpoch               uint64
	DatabaseType             string
	Languages                []string
	Description              map[string]string

	nodeByteSize   uint
	searchTreeSize uint
}

func parseMetadata(v decode.Value) (*Metadata, error) {
	if v.Kind != decode.KindMap {
		return nil, fmt.Errorf("%w: metadata block is %s, want map", ErrInvalidDatabase, v.Kind)
	}
	m := v.Map

	var md Metadata
	var err error
	if md.NodeCount, err = requiredUint(m, "node_count"); err != nil {
		return nil, err
	}
	if md.RecordSize, err = requiredUint(m, "record_size"); err != nil {
		return nil, err
	}
	if md.IPVersion, err = requiredUint(m, "ip_version"); err != nil {
		return nil, err
	}

	// descriptive fields; absent ones stay zero
	md.BinaryFormatMajorVersion, _ = optionalUint(m, "binary_format_major_version")
	md.BinaryFormatMinorVersion, _ = optionalUint(m, "binary_format_minor_version")
	if f, ok := m["build_epoch"]; ok && isUintKind(f.Kind) {
		md.BuildEpoch = f.Uint
	}
	if f, ok := m["database_type"]; ok && f.Kind == decode.KindString {
		md.DatabaseType = f.Str
	}
	if f, ok := m["languages"]; ok && f.Kind == decode.KindSlice {
		for _, lang := range f.Slice {
			if lang.Kind == decode.KindString {
				md.Languages = append(md.Languages, lang.Str)
			}
		}
	}
	if f, ok := m["description"]; ok && f.Kind == decode.KindMap {
		md.Description = make(map[string]string, len(f.Map))
		for k, d := range f.Map {
			if d.Kind == decode.KindString {
				md.Description[k] = d.Str
			}
		}
	}

	md.nodeByteSize = md.RecordSize * 2 / 8
	md.searchTreeSize = md.NodeCount * md.nodeByteSize
	return &md, nil
}

// validate rejects metadata a lookup cannot safely run against.  markerStart
// is the offset of the marker's first byte; the search tree plus the 16-byte
// separator must fit below it.
func (md *Metadata) validate(markerStart int) error {
	switch md.RecordSize {
	case 24, 28, 32:
	default:
		return fmt.Errorf("%w: unknown record size %d", ErrInvalidDatabase, md.RecordSize)
	}
	if md.IPVersion != 4 && md.IPVersion != 6 {
		return fmt.Errorf("%w: unknown IP version %d", ErrInvalidDatabase, md.IPVersion)
	}
	if md.BinaryFormatMajorVersion != 0 && md.BinaryFormatMajorVersion != 2 {
		return fmt.Errorf("%w: unsupported binary format version %d.%d", ErrInvalidDatabase,
			md.BinaryFormatMajorVersion, md.BinaryFormatMinorVersion)
	}
	// uint64 math so a crafted node_count cannot wrap the derived sizes
	treeAndSeparator := uint64(md.NodeCount)*uint64(md.nodeByteSize) + dataSectionSeparatorSize
	if treeAndSeparator > uint64(markerStart) {
		return fmt.Errorf("%w: search tree of %d nodes does not fit in the file", ErrInvalidDatabase, md.NodeCount)
	}
	return nil
}

func isUintKind(k decode.Kind) bool {
	return k == decode.KindUint16 || k == decode.KindUint32 || k == decode.KindUint64
}

func requiredUint(m map[string]decode.Value, key string) (uint, error) {
	v, err := optionalUint(m, key)
	if err != nil {
		return 0, err
	}
	if _, ok := m[key]; !ok {
		return 0, fmt.Errorf("%w: metadata is missing %q", ErrInvalidDatabase, key)
	}
	return v, nil
}

func optionalUint(m map[string]decode.Value, key string) (uint, error) {
	f, ok := m[key]
	if !ok {
		return 0, nil
	}
	if !isUintKind(f.Kind) {
		return 0, fmt.Errorf("%w: metadata field %q is %s, want unsigned int", ErrInvalidDatabase, key, f.Kind)
	}
	if f.Uint > uint64(^uint(0)>>1) {
		return 0, fmt.Errorf("%w: metadata field %q out of range (%d)", ErrInvalidDatabase, key, f.Uint)
	}
	return uint(f.Uint), nil
}
