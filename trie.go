// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mmdb

import "fmt"

// findAddressInTree walks the search tree bit-by-bit for a raw 4- or
// 16-byte address.  It returns (pointer, true) when the walk lands on a data
// pointer, (0, false) when the address has no record, and an error when the
// tree is malformed.
//
// A 4-byte address looked up in an IPv6 tree starts 96 bits in: the tree
// embeds IPv4 as the low 32 bits of a 16-byte address whose leading 96 bits
// are zero, so those bits are consumed as implicit zeros.
func (r *Reader) findAddressInTree(address []byte) (uint, bool, error) {
	var startBit uint
	if len(address) == 4 && r.metadata.IPVersion == 6 {
		startBit = 96
	}
	totalBits := uint(len(address))*8 + startBit
	nodeCount := r.metadata.NodeCount

	// the walk always starts at node 0
	var node uint
	for i := uint(0); i < totalBits; i++ {
		var bit uint
		if i >= startBit {
			b := address[(i-startBit)/8]
			bit = uint(1 & (b >> (7 - i%8)))
		}

		record, err := r.readNodeRecord(node, bit)
		if err != nil {
			return 0, false, err
		}

		switch {
		case record == nodeCount:
			return 0, false, nil
		case record > nodeCount:
			return record, true, nil
		}
		// record < nodeCount: descend
		node = record
	}

	// a well-formed tree terminates within the address's bit budget
	return 0, false, fmt.Errorf("%w: search tree walk did not terminate after %d bits",
		ErrInvalidDatabase, totalBits)
}
