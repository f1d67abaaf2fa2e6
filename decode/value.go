// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package decode

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Kind identifies which variant of a Value is populated.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindBytes
	KindMap
	KindSlice
	KindUint16
	KindUint32
	KindUint64
	KindUint128
	KindInt32
	KindFloat64
	KindFloat32
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	case KindSlice:
		return "slice"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindUint128:
		return "uint128"
	case KindInt32:
		return "int32"
	case KindFloat64:
		return "float64"
	case KindFloat32:
		return "float32"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is one node of a decoded value tree.  Exactly the field matching
// Kind is meaningful; everything else is left zero.  Uint holds the decoded
// number for KindUint16, KindUint32 and KindUint64; 128-bit integers get
// their own Big field.
//
// Values are fully copied out of the database buffer, so they stay valid
// after the database is closed.
type Value struct {
	Kind    Kind
	Str     string
	Bytes   []byte
	Map     map[string]Value
	Slice   []Value
	Uint    uint64
	Big     *big.Int
	Int     int32
	Float64 float64
	Float32 float32
	Bool    bool
}

// MarshalJSON renders the value tree with its natural JSON shape (maps as
// objects, byte slices as base64 strings, 128-bit ints as bare numbers).
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindBytes:
		return json.Marshal(v.Bytes)
	case KindMap:
		return json.Marshal(v.Map)
	case KindSlice:
		return json.Marshal(v.Slice)
	case KindUint16, KindUint32, KindUint64:
		return json.Marshal(v.Uint)
	case KindUint128:
		if v.Big == nil {
			return []byte("0"), nil
		}
		return []byte(v.Big.String()), nil
	case KindInt32:
		return json.Marshal(v.Int)
	case KindFloat64:
		return json.Marshal(v.Float64)
	case KindFloat32:
		return json.Marshal(v.Float32)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return nil, fmt.Errorf("cannot marshal %s value", v.Kind)
	}
}
