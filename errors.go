// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mmdb

import "errors"

var (
	// ErrInvalidDatabase reports a structurally corrupt or incompatible
	// database file: a missing metadata marker, out-of-range metadata
	// fields, a record or offset that escapes the file's bounds, or a
	// search-tree walk that fails to terminate.  It is fatal to the
	// operation that hits it and never retried.
	ErrInvalidDatabase = errors.New("invalid MMDB database")

	// ErrUsage reports a lookup argument the database cannot answer, such
	// as an address that is neither 4 nor 16 bytes, or an IPv6 address
	// looked up in an IPv4-only database.  It is fatal to that call only.
	ErrUsage = errors.New("unusable lookup address")
)
