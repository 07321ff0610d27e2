// Package leb128 decodes the Little Endian Base 128 variable-length integer
// format used throughout DWARF (DWARF v5 section 7.6).
//
// Unlike github.com/go-delve/delve/pkg/dwarf/leb128, which this package is
// adapted from, a truncated encoding is reported as an error instead of a
// panic: this decoder runs over debug data from arbitrary, possibly
// adversarial binaries and must not crash its caller.
package leb128

import (
	"io"

	"github.com/coredump-run/dwarfsym/dwerr"
)

// ByteReader is the minimal interface leb128 needs from its input.
type ByteReader interface {
	ReadByte() (byte, error)
}

// DecodeUnsigned decodes an unsigned LEB128 value, returning the value and
// the number of bytes consumed.
func DecodeUnsigned(r ByteReader) (uint64, int, error) {
	var result uint64
	var shift uint
	var length int
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, length, dwerr.Bad(dwerr.KindGeneric, "truncated uleb128")
			}
			return 0, length, err
		}
		length++
		if shift >= 64 {
			return 0, length, dwerr.Bad(dwerr.KindOverflow, "uleb128 exceeds 64 bits")
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, length, nil
		}
		shift += 7
	}
}

// DecodeSigned decodes a signed LEB128 value, returning the value and the
// number of bytes consumed.
func DecodeSigned(r ByteReader) (int64, int, error) {
	var result int64
	var shift uint
	var length int
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, length, dwerr.Bad(dwerr.KindGeneric, "truncated sleb128")
			}
			return 0, length, err
		}
		length++
		if shift >= 64 {
			return 0, length, dwerr.Bad(dwerr.KindOverflow, "sleb128 exceeds 64 bits")
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, length, nil
}

// unsignedOverflows reports whether x cannot be represented in bitSize unsigned
// bits.
func unsignedOverflows(x uint64, bitSize int) bool {
	if bitSize >= 64 {
		return false
	}
	return x>>uint(bitSize) != 0
}

// signedOverflows reports whether x cannot be represented in bitSize signed
// bits.
func signedOverflows(x int64, bitSize int) bool {
	if bitSize >= 64 {
		return false
	}
	min := int64(-1) << uint(bitSize-1)
	max := (int64(1) << uint(bitSize-1)) - 1
	return x < min || x > max
}

// DecodeUnsignedAs decodes an unsigned LEB128 and checks that it fits in
// bitSize bits, failing with dwerr.KindOverflow otherwise.
func DecodeUnsignedAs(r ByteReader, bitSize int) (uint64, int, error) {
	v, n, err := DecodeUnsigned(r)
	if err != nil {
		return 0, n, err
	}
	if unsignedOverflows(v, bitSize) {
		return 0, n, dwerr.Bad(dwerr.KindOverflow, "uleb128 value %#x does not fit in %d bits", v, bitSize)
	}
	return v, n, nil
}

// DecodeSignedAs decodes a signed LEB128 and checks that it fits in bitSize
// bits, failing with dwerr.KindOverflow otherwise.
func DecodeSignedAs(r ByteReader, bitSize int) (int64, int, error) {
	v, n, err := DecodeSigned(r)
	if err != nil {
		return 0, n, err
	}
	if signedOverflows(v, bitSize) {
		return 0, n, dwerr.Bad(dwerr.KindOverflow, "sleb128 value %#x does not fit in %d bits", v, bitSize)
	}
	return v, n, nil
}
