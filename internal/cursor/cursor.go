// Package cursor implements a positioned reader over a DWARF section byte
// slice, adapted from the buffered-reading style of
// github.com/go-delve/delve/pkg/dwarf/util.Buf. Unlike that type, Cursor
// returns errors instead of recording a sticky Err field, and optionally
// consults a caller-supplied memory-validity predicate before every read so
// it can double as a reader over live process memory.
package cursor

import (
	"encoding/binary"

	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/leb128"
)

// Format is the DWARF initial-length format: 32-bit or 64-bit encoding of
// unit lengths and section offsets.
type Format int

const (
	Format32 Format = iota
	Format64
)

// OffsetSize is the width, in bytes, of an offset under this format.
func (f Format) OffsetSize() int {
	if f == Format64 {
		return 8
	}
	return 4
}

// UnitHeader is the result of decoding a DWARF initial-length field
// (section 7.4): which format it selects, how many bytes the length field
// itself occupied, and the unit length that follows.
type UnitHeader struct {
	Format       Format
	HeaderLength int // bytes consumed by the initial-length field (4 or 12)
	UnitLength   uint64
}

// Validator reports whether the n bytes starting at addr are safe to read.
// Used only by the checked primitives, for reading live process memory;
// nil means "don't check" (the common case of reading from a byte slice
// already materialized in memory).
type Validator func(addr uint64, n int) bool

// Cursor is a positioned reader over data, interpreting multi-byte
// integers in order and, if validate is non-nil, checking readability of
// the corresponding runtime address range (base+pos) before each read.
type Cursor struct {
	data     []byte
	pos      int
	order    binary.ByteOrder
	base     uint64 // runtime address of data[0]; meaningful only if validate != nil
	validate Validator
}

// New returns an unchecked cursor over data.
func New(data []byte, order binary.ByteOrder) *Cursor {
	return &Cursor{data: data, order: order}
}

// NewChecked returns a cursor over data that consults validate before each
// read, treating data[0] as mapped at runtime address base.
func NewChecked(data []byte, order binary.ByteOrder, base uint64, validate Validator) *Cursor {
	return &Cursor{data: data, order: order, base: base, validate: validate}
}

// Len returns the number of unread bytes.
func (c *Cursor) Len() int { return len(c.data) - c.pos }

// Pos returns the current byte offset into data.
func (c *Cursor) Pos() int { return c.pos }

// ByteOrder returns the order in which multi-byte integers are decoded.
func (c *Cursor) ByteOrder() binary.ByteOrder { return c.order }

// SeekTo moves the cursor to an absolute offset.
func (c *Cursor) SeekTo(off int) error {
	if off < 0 || off > len(c.data) {
		return dwerr.Bad(dwerr.KindGeneric, "seek to %d out of range [0,%d]", off, len(c.data))
	}
	c.pos = off
	return nil
}

// SeekForward advances the cursor by delta bytes (delta may be negative).
func (c *Cursor) SeekForward(delta int) error {
	return c.SeekTo(c.pos + delta)
}

// ensure validates that n bytes starting at the cursor are both in-bounds
// and, if a Validator is installed, readable.
func (c *Cursor) ensure(n int) error {
	if n < 0 || c.pos+n > len(c.data) {
		return dwerr.Bad(dwerr.KindGeneric, "underflow: need %d bytes at offset %d, have %d", n, c.pos, len(c.data)-c.pos)
	}
	if c.validate != nil && !c.validate(c.base+uint64(c.pos), n) {
		return dwerr.Bad(dwerr.KindInvalidMemory, "memory at %#x (%d bytes) is not accessible", c.base+uint64(c.pos), n)
	}
	return nil
}

// ReadByte implements io.ByteReader (and leb128.ByteReader), for LEB128
// decoding and for NUL-terminated string scanning.
func (c *Cursor) ReadByte() (byte, error) {
	if err := c.ensure(1); err != nil {
		return 0, err
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

// ReadU8 reads one unsigned byte.
func (c *Cursor) ReadU8() (uint8, error) { return c.ReadByte() }

// ReadI8 reads one signed byte.
func (c *Cursor) ReadI8() (int8, error) {
	b, err := c.ReadByte()
	return int8(b), err
}

// ReadUint16 reads a 2-byte unsigned integer.
func (c *Cursor) ReadUint16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return c.order.Uint16(b), nil
}

// ReadInt16 reads a 2-byte signed integer.
func (c *Cursor) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}

// ReadUint24 reads a 3-byte unsigned integer (used by DW_FORM_strx3 and
// DW_FORM_addrx3).
func (c *Cursor) ReadUint24() (uint32, error) {
	b, err := c.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	if c.order == binary.LittleEndian {
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
	}
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16, nil
}

// ReadUint32 reads a 4-byte unsigned integer.
func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return c.order.Uint32(b), nil
}

// ReadInt32 reads a 4-byte signed integer.
func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads an 8-byte unsigned integer.
func (c *Cursor) ReadUint64() (uint64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return c.order.Uint64(b), nil
}

// ReadInt64 reads an 8-byte signed integer.
func (c *Cursor) ReadInt64() (int64, error) {
	v, err := c.ReadUint64()
	return int64(v), err
}

// ReadUintSized reads an unsigned integer of the given width (1, 2, 3, 4 or
// 8 bytes), as used for sec_offset/initial-length-sized and address-sized
// fields.
func (c *Cursor) ReadUintSized(n int) (uint64, error) {
	switch n {
	case 1:
		v, err := c.ReadU8()
		return uint64(v), err
	case 2:
		v, err := c.ReadUint16()
		return uint64(v), err
	case 3:
		v, err := c.ReadUint24()
		return uint64(v), err
	case 4:
		v, err := c.ReadUint32()
		return uint64(v), err
	case 8:
		return c.ReadUint64()
	default:
		return 0, dwerr.Bad(dwerr.KindUnsupportedAddrSize, "unsupported integer width %d", n)
	}
}

// ReadAddress reads a native-word address sized per format (4 bytes for
// Format32, 8 bytes for Format64). This is used where the spec calls for
// "an address-sized read obeying the initial-length format".
func (c *Cursor) ReadAddress(format Format) (uint64, error) {
	return c.ReadUintSized(format.OffsetSize())
}

// ReadULEB128 decodes an unsigned LEB128 value.
func (c *Cursor) ReadULEB128() (uint64, error) {
	v, _, err := leb128.DecodeUnsigned(c)
	return v, err
}

// ReadSLEB128 decodes a signed LEB128 value.
func (c *Cursor) ReadSLEB128() (int64, error) {
	v, _, err := leb128.DecodeSigned(c)
	return v, err
}

// ReadULEB128As decodes an unsigned LEB128 value and fails with
// dwerr.KindOverflow if it does not fit in bitSize bits.
func (c *Cursor) ReadULEB128As(bitSize int) (uint64, error) {
	v, _, err := leb128.DecodeUnsignedAs(c, bitSize)
	return v, err
}

// ReadSLEB128As decodes a signed LEB128 value and fails with
// dwerr.KindOverflow if it does not fit in bitSize bits.
func (c *Cursor) ReadSLEB128As(bitSize int) (int64, error) {
	v, _, err := leb128.DecodeSignedAs(c, bitSize)
	return v, err
}

// ReadBytes returns a slice of n bytes borrowed directly from the
// underlying data (zero-copy) and advances the cursor past them.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.ensure(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadBytesUntil scans forward for sentinel, returning the run of bytes up
// to (but excluding) it, and consumes the sentinel itself. Used for
// NUL-terminated strings.
func (c *Cursor) ReadBytesUntil(sentinel byte) ([]byte, error) {
	for i := c.pos; i < len(c.data); i++ {
		if c.data[i] == sentinel {
			if err := c.ensure(i - c.pos + 1); err != nil {
				return nil, err
			}
			b := c.data[c.pos:i]
			c.pos = i + 1
			return b, nil
		}
	}
	return nil, dwerr.Bad(dwerr.KindGeneric, "underflow: no terminator %#x before end of data", sentinel)
}

// ReadCString reads a NUL-terminated byte run and returns it as a string
// (still a copy only in the sense that Go strings from byte slices always
// copy; the read itself performs no extra allocation beyond that).
func (c *Cursor) ReadCString() (string, error) {
	b, err := c.ReadBytesUntil(0)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadInitialLength implements the DWARF initial-length discipline
// (section 7.4): the first 4 bytes are read as u32; values below
// 0xfffffff0 select the 32-bit format directly as the unit length; the
// value 0xffffffff introduces the 64-bit format, whose unit length is the
// following 8 bytes; all other values (0xfffffff0 through 0xfffffffe) are
// malformed reserved values.
func (c *Cursor) ReadInitialLength() (UnitHeader, error) {
	first, err := c.ReadUint32()
	if err != nil {
		return UnitHeader{}, err
	}
	switch {
	case first < 0xfffffff0:
		return UnitHeader{Format: Format32, HeaderLength: 4, UnitLength: uint64(first)}, nil
	case first == 0xffffffff:
		length, err := c.ReadUint64()
		if err != nil {
			return UnitHeader{}, err
		}
		return UnitHeader{Format: Format64, HeaderLength: 12, UnitLength: length}, nil
	default:
		return UnitHeader{}, dwerr.Bad(dwerr.KindGeneric, "reserved initial-length value %#x", first)
	}
}
