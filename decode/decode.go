// Copyright 2024 The mmdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package decode turns the self-describing binary values stored in an MMDB
// data section into Value trees.  Each encoded value starts with a control
// byte whose top 3 bits name the type (0 selects an extended type held in
// the following byte) and whose bottom 5 bits start the payload size.
// Decoding is a pure function of (buffer, offset); the decoder holds no
// cursor and is safe for concurrent use.
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
)

var (
	ErrTruncated    = errors.New("decode: value extends past end of buffer")
	ErrPointerDepth = errors.New("decode: pointer or nesting depth exceeded")
)

// wire type numbers; 8 and up arrive via the extended-type byte.
const (
	typePointer   = 1
	typeString    = 2
	typeFloat64   = 3
	typeBytes     = 4
	typeUint16    = 5
	typeUint32    = 6
	typeMap       = 7
	typeInt32     = 8
	typeUint64    = 9
	typeUint128   = 10
	typeSlice     = 11
	typeContainer = 12
	typeEndMarker = 13
	typeBool      = 14
	typeFloat32   = 15
)

// maxDepth bounds both pointer chains and container nesting so a crafted
// file cannot recurse the decoder forever.
const maxDepth = 512

// Decoder reads values out of an immutable byte buffer.  Pointer values are
// resolved relative to pointerBase (the start of the data section, or 0 when
// decoding the metadata block).
type Decoder struct {
	buffer      []byte
	pointerBase uint
}

func NewDecoder(buffer []byte, pointerBase uint) *Decoder {
	return &Decoder{buffer: buffer, pointerBase: pointerBase}
}

// Decode reads the value starting at offset and returns it along with the
// offset of the first byte past the encoded value.
func (d *Decoder) Decode(offset uint) (Value, uint, error) {
	return d.decode(offset, 0)
}

func (d *Decoder) decode(offset uint, depth int) (Value, uint, error) {
	if depth > maxDepth {
		return Value{}, 0, ErrPointerDepth
	}
	if offset >= uint(len(d.buffer)) {
		return Value{}, 0, fmt.Errorf("%w: control byte at %d", ErrTruncated, offset)
	}
	ctrl := d.buffer[offset]
	offset++

	typeNum := uint(ctrl >> 5)
	if typeNum == 0 {
		// extended type: real type number lives in the next byte
		if offset >= uint(len(d.buffer)) {
			return Value{}, 0, fmt.Errorf("%w: extended type at %d", ErrTruncated, offset)
		}
		typeNum = 7 + uint(d.buffer[offset])
		offset++
	}

	if typeNum == typePointer {
		return d.decodePointer(ctrl, offset, depth)
	}

	size, offset, err := d.decodeSize(ctrl, offset)
	if err != nil {
		return Value{}, 0, err
	}

	switch typeNum {
	case typeString:
		b, next, err := d.sliceAt(offset, size)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: KindString, Str: string(b)}, next, nil
	case typeBytes:
		b, next, err := d.sliceAt(offset, size)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: KindBytes, Bytes: append([]byte(nil), b...)}, next, nil
	case typeFloat64:
		if size != 8 {
			return Value{}, 0, fmt.Errorf("decode: double has size %d, want 8", size)
		}
		b, next, err := d.sliceAt(offset, size)
		if err != nil {
			return Value{}, 0, err
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(b))
		return Value{Kind: KindFloat64, Float64: f}, next, nil
	case typeFloat32:
		if size != 4 {
			return Value{}, 0, fmt.Errorf("decode: float has size %d, want 4", size)
		}
		b, next, err := d.sliceAt(offset, size)
		if err != nil {
			return Value{}, 0, err
		}
		f := math.Float32frombits(binary.BigEndian.Uint32(b))
		return Value{Kind: KindFloat32, Float32: f}, next, nil
	case typeUint16, typeUint32, typeUint64:
		kind, maxSize := KindUint16, uint(2)
		switch typeNum {
		case typeUint32:
			kind, maxSize = KindUint32, 4
		case typeUint64:
			kind, maxSize = KindUint64, 8
		}
		if size > maxSize {
			return Value{}, 0, fmt.Errorf("decode: %s has size %d, want <= %d", kind, size, maxSize)
		}
		b, next, err := d.sliceAt(offset, size)
		if err != nil {
			return Value{}, 0, err
		}
		var n uint64
		for _, c := range b {
			n = n<<8 | uint64(c)
		}
		return Value{Kind: kind, Uint: n}, next, nil
	case typeUint128:
		if size > 16 {
			return Value{}, 0, fmt.Errorf("decode: uint128 has size %d, want <= 16", size)
		}
		b, next, err := d.sliceAt(offset, size)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: KindUint128, Big: new(big.Int).SetBytes(b)}, next, nil
	case typeInt32:
		if size > 4 {
			return Value{}, 0, fmt.Errorf("decode: int32 has size %d, want <= 4", size)
		}
		b, next, err := d.sliceAt(offset, size)
		if err != nil {
			return Value{}, 0, err
		}
		var n uint32
		for _, c := range b {
			n = n<<8 | uint32(c)
		}
		return Value{Kind: KindInt32, Int: int32(n)}, next, nil
	case typeBool:
		switch size {
		case 0:
			return Value{Kind: KindBool, Bool: false}, offset, nil
		case 1:
			return Value{Kind: KindBool, Bool: true}, offset, nil
		default:
			return Value{}, 0, fmt.Errorf("decode: bool has size %d, want 0 or 1", size)
		}
	case typeMap:
		return d.decodeMap(size, offset, depth)
	case typeSlice:
		return d.decodeSlice(size, offset, depth)
	case typeContainer:
		return Value{}, 0, errors.New("decode: unexpected data cache container")
	case typeEndMarker:
		return Value{}, 0, errors.New("decode: unexpected end marker")
	default:
		return Value{}, 0, fmt.Errorf("decode: unknown type %d", typeNum)
	}
}

// decodePointer resolves a pointer record and returns the pointed-at value.
// The returned next offset is the one just past the pointer itself, so a
// caller iterating a map or slice keeps its place.
func (d *Decoder) decodePointer(ctrl byte, offset uint, depth int) (Value, uint, error) {
	pointerSize := uint(ctrl>>3)&0x3 + 1
	b, next, err := d.sliceAt(offset, pointerSize)
	if err != nil {
		return Value{}, 0, err
	}

	prefix := uint(ctrl & 0x7)
	var target uint
	switch pointerSize {
	case 1:
		target = prefix<<8 | uint(b[0])
	case 2:
		target = (prefix<<16 | uint(b[0])<<8 | uint(b[1])) + 2048
	case 3:
		target = (prefix<<24 | uint(b[0])<<16 | uint(b[1])<<8 | uint(b[2])) + 526336
	case 4:
		target = uint(binary.BigEndian.Uint32(b))
	}

	v, _, err := d.decode(d.pointerBase+target, depth+1)
	if err != nil {
		return Value{}, 0, err
	}
	return v, next, nil
}

func (d *Decoder) decodeMap(count, offset uint, depth int) (Value, uint, error) {
	m := make(map[string]Value, count)
	for i := uint(0); i < count; i++ {
		key, next, err := d.decode(offset, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		if key.Kind != KindString {
			return Value{}, 0, fmt.Errorf("decode: map key at %d is %s, want string", offset, key.Kind)
		}
		offset = next
		v, next, err := d.decode(offset, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		m[key.Str] = v
		offset = next
	}
	return Value{Kind: KindMap, Map: m}, offset, nil
}

func (d *Decoder) decodeSlice(count, offset uint, depth int) (Value, uint, error) {
	s := make([]Value, 0, count)
	for i := uint(0); i < count; i++ {
		v, next, err := d.decode(offset, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		s = append(s, v)
		offset = next
	}
	return Value{Kind: KindSlice, Slice: s}, offset, nil
}

// decodeSize expands the low 5 bits of the control byte into the payload
// size: values below 29 stand for themselves, 29..31 pull 1..3 extra bytes.
func (d *Decoder) decodeSize(ctrl byte, offset uint) (size, next uint, err error) {
	size = uint(ctrl & 0x1f)
	if size < 29 {
		return size, offset, nil
	}
	extra := size - 28
	b, next, err := d.sliceAt(offset, extra)
	if err != nil {
		return 0, 0, err
	}
	switch extra {
	case 1:
		size = 29 + uint(b[0])
	case 2:
		size = 285 + uint(b[0])<<8 + uint(b[1])
	case 3:
		size = 65821 + uint(b[0])<<16 + uint(b[1])<<8 + uint(b[2])
	}
	return size, next, nil
}

// sliceAt bounds-checks and returns buffer[offset:offset+n] along with the
// offset just past it.
func (d *Decoder) sliceAt(offset, n uint) ([]byte, uint, error) {
	end := offset + n
	if end < offset || end > uint(len(d.buffer)) {
		return nil, 0, fmt.Errorf("%w: %d bytes at %d (buffer is %d)", ErrTruncated, n, offset, len(d.buffer))
	}
	return d.buffer[offset:end], end, nil
}
