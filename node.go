// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mmdb

import "fmt"

// readNodeRecord decodes one child record of the search-tree node at index
// node.  child is 0 for the left record, 1 for the right.  Records are
// big-endian; the 28-bit encoding packs each record's top nibble into the
// byte shared between them (high nibble extends the left record, low nibble
// the right).
func (r *Reader) readNodeRecord(node, child uint) (uint, error) {
	base := node * r.metadata.nodeByteSize
	switch r.metadata.RecordSize {
	case 24:
		b, err := r.treeBytes(base+child*3, 3)
		if err != nil {
			return 0, err
		}
		return uint(b[0])<<16 | uint(b[1])<<8 | uint(b[2]), nil
	case 28:
		b, err := r.treeBytes(base, 7)
		if err != nil {
			return 0, err
		}
		nibble := uint(b[3] >> 4)
		if child == 1 {
			nibble = uint(b[3] & 0x0f)
		}
		j := child * 4
		return nibble<<24 | uint(b[j])<<16 | uint(b[j+1])<<8 | uint(b[j+2]), nil
	case 32:
		b, err := r.treeBytes(base+child*4, 4)
		if err != nil {
			return 0, err
		}
		return uint(b[0])<<24 | uint(b[1])<<16 | uint(b[2])<<8 | uint(b[3]), nil
	default:
		// unreachable after open-time validation
		return 0, fmt.Errorf("%w: unknown record size %d", ErrInvalidDatabase, r.metadata.RecordSize)
	}
}

// treeBytes bounds-checks a read against both the search tree's extent and
// the file itself; the file is untrusted, so a record may point anywhere.
func (r *Reader) treeBytes(off, n uint) ([]byte, error) {
	end := off + n
	if end < off || end > r.metadata.searchTreeSize || end > uint(len(r.buffer)) {
		return nil, fmt.Errorf("%w: node record at %d is outside the search tree (%d bytes)",
			ErrInvalidDatabase, off, r.metadata.searchTreeSize)
	}
	b := r.buffer[off:end]
	_ = b[n-1] // bounds check elimination
	return b, nil
}
