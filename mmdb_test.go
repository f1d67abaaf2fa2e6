// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mmdb

// Helpers that hand-assemble synthetic databases for the tests: a minimal
// wire-format value encoder, a search-tree builder, and the glue that lays
// out tree + separator + data section + marker + metadata.

import (
	"fmt"
	"testing"
)

// ---- wire-format value encoders (enough of the format for fixtures) ----

func encString(s string) []byte {
	if len(s) >= 29 {
		panic("encString: fixture strings must be short")
	}
	return append([]byte{0x40 | byte(len(s))}, s...)
}

func encBytes(b []byte) []byte {
	if len(b) >= 29 {
		panic("encBytes: fixture byte values must be short")
	}
	return append([]byte{0x80 | byte(len(b))}, b...)
}

func minimalBE(v uint64) []byte {
	var out []byte
	for v > 0 {
		out = append([]byte{byte(v)}, out...)
		v >>= 8
	}
	return out
}

func encUint16(v uint) []byte {
	b := minimalBE(uint64(v))
	return append([]byte{0xa0 | byte(len(b))}, b...)
}

func encUint32(v uint) []byte {
	b := minimalBE(uint64(v))
	return append([]byte{0xc0 | byte(len(b))}, b...)
}

func encUint64(v uint64) []byte {
	b := minimalBE(v)
	return append([]byte{byte(len(b)), 0x02}, b...)
}

type mapField struct {
	key string
	val []byte
}

func encMap(fields []mapField) []byte {
	if len(fields) >= 29 {
		panic("encMap: too many fixture fields")
	}
	out := []byte{0xe0 | byte(len(fields))}
	for _, f := range fields {
		out = append(out, encString(f.key)...)
		out = append(out, f.val...)
	}
	return out
}

// ---- search-tree builder ----

const (
	refNoData = iota
	refNode
	refData
)

type childRef struct {
	kind int
	idx  uint // node index for refNode, data-section offset for refData
}

type trieBuilder struct {
	nodes [][2]childRef
}

func newTrieBuilder() *trieBuilder {
	return &trieBuilder{nodes: make([][2]childRef, 1)}
}

// insert routes the full bit path (a string of '0'/'1') to the value at
// dataOffset within the data section.
func (tb *trieBuilder) insert(bits string, dataOffset uint) {
	node := uint(0)
	for i := 0; i < len(bits); i++ {
		c := 0
		if bits[i] == '1' {
			c = 1
		}
		if i == len(bits)-1 {
			tb.nodes[node][c] = childRef{kind: refData, idx: dataOffset}
			return
		}
		ref := tb.nodes[node][c]
		if ref.kind != refNode {
			tb.nodes = append(tb.nodes, [2]childRef{})
			ref = childRef{kind: refNode, idx: uint(len(tb.nodes) - 1)}
			tb.nodes[node][c] = ref
		}
		node = ref.idx
	}
}

// records materializes child refs into record values: no-data children get
// the node-count sentinel, data children get node_count + 16 + offset so the
// resolver lands on the data section.
func (tb *trieBuilder) records() [][2]uint {
	nodeCount := uint(len(tb.nodes))
	recs := make([][2]uint, nodeCount)
	for i, n := range tb.nodes {
		for c := 0; c < 2; c++ {
			switch ref := n[c]; ref.kind {
			case refNoData:
				recs[i][c] = nodeCount
			case refNode:
				recs[i][c] = ref.idx
			case refData:
				recs[i][c] = nodeCount + dataSectionSeparatorSize + ref.idx
			}
		}
	}
	return recs
}

func encodeTree(records [][2]uint, recordSize uint) []byte {
	var out []byte
	for _, rec := range records {
		l, r := rec[0], rec[1]
		switch recordSize {
		case 24:
			out = append(out,
				byte(l>>16), byte(l>>8), byte(l),
				byte(r>>16), byte(r>>8), byte(r))
		case 28:
			out = append(out,
				byte(l>>16), byte(l>>8), byte(l),
				byte(l>>24)<<4|byte(r>>24)&0x0f,
				byte(r>>16), byte(r>>8), byte(r))
		case 32:
			out = append(out,
				byte(l>>24), byte(l>>16), byte(l>>8), byte(l),
				byte(r>>24), byte(r>>16), byte(r>>8), byte(r))
		default:
			panic(fmt.Sprintf("encodeTree: record size %d", recordSize))
		}
	}
	return out
}

// buildDatabase lays out a complete database: search tree, 16-byte
// separator, data section, metadata marker, metadata block.
func buildDatabase(t testing.TB, recordSize, ipVersion uint, records [][2]uint, dataSection []byte) []byte {
	t.Helper()

	buf := encodeTree(records, recordSize)
	buf = append(buf, make([]byte, dataSectionSeparatorSize)...)
	buf = append(buf, dataSection...)
	buf = append(buf, metadataStartMarker...)
	buf = append(buf, encMap([]mapField{
		{"binary_format_major_version", encUint16(2)},
		{"binary_format_minor_version", encUint16(0)},
		{"build_epoch", encUint64(1700000000)},
		{"database_type", encString("Test")},
		{"description", encMap([]mapField{{"en", encString("test fixture")}})},
		{"ip_version", encUint16(ipVersion)},
		{"languages", append([]byte{0x01, 0x04}, encString("en")...)},
		{"node_count", encUint32(uint(len(records)))},
		{"record_size", encUint16(recordSize)},
	})...)
	return buf
}

func bitsOf(address []byte) string {
	out := make([]byte, 0, len(address)*8)
	for _, b := range address {
		for i := 7; i >= 0; i-- {
			out = append(out, '0'+(b>>uint(i))&1)
		}
	}
	return string(out)
}
