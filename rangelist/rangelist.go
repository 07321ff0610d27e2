// Package rangelist iterates the two historical encodings of a DIE's
// AT_ranges attribute: the raw address-pair stream of pre-DWARF5
// .debug_ranges, and the tagged-opcode stream of DWARF5 .debug_rnglists.
// Grounded on github.com/go-delve/delve/pkg/dwarf/loclist's
// dwarf2_loclist.go (BaseAddressSelection/oneAddr pattern, shared between
// location and range lists in pre-v5 DWARF) and dwarf5_loclist.go
// (loclistsIterator's tagged-opcode dispatch), generalized from location
// lists to range lists since the two formats are structurally identical
// modulo the entry kinds each permits.
package rangelist

import (
	"encoding/binary"

	"github.com/coredump-run/dwarfsym/abbrev"
	"github.com/coredump-run/dwarfsym/addrtab"
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/sections"
)

// Range is a half-open [Start, End) address range.
type Range struct {
	Start uint64
	End   uint64
}

// Context carries the compile-unit facts the iterator needs but that live
// outside the range-list sections themselves.
type Context struct {
	Version      uint16
	Format       cursor.Format
	AddrSize     int
	LowPC        uint64 // AT_low_pc of the owning CU, or 0; the initial base address
	RnglistsBase uint64 // AT_rnglists_base of the owning CU; only used for v5 rnglistx
	AddrBase     uint64 // AT_addr_base of the owning CU; only used for v5 *x forms
}

// Iterate resolves form (an AT_ranges attribute value) into its list of
// ranges, dispatching on the CU's DWARF version.
func Iterate(reg *sections.Registry, order binary.ByteOrder, ctx Context, form abbrev.Value) ([]Range, error) {
	var offset uint64
	switch form.Kind {
	case abbrev.KindSecOffset, abbrev.KindUdata:
		offset = form.U64
	case abbrev.KindRnglistx:
		off, err := resolveRnglistx(reg, order, ctx.Format, ctx.RnglistsBase, form.U64)
		if err != nil {
			return nil, err
		}
		offset = off
	default:
		return nil, dwerr.Bad(dwerr.KindGeneric, "AT_ranges has unsupported form kind %d", form.Kind)
	}

	if ctx.Version >= 5 {
		return iterateV5(reg, order, ctx, offset)
	}
	return iterateV4(reg, order, ctx, offset)
}

func resolveRnglistx(reg *sections.Registry, order binary.ByteOrder, format cursor.Format, rnglistsBase uint64, index uint64) (uint64, error) {
	data := reg.Bytes(sections.DebugRnglists)
	if data == nil {
		return 0, dwerr.Missing("rnglistx used without a .debug_rnglists section")
	}
	slotSize := format.OffsetSize()
	cur := cursor.New(data, order)
	if err := cur.SeekTo(int(rnglistsBase) + int(index)*slotSize); err != nil {
		return 0, err
	}
	rel, err := cur.ReadUintSized(slotSize)
	if err != nil {
		return 0, err
	}
	return rnglistsBase + rel, nil
}

func iterateV5(reg *sections.Registry, order binary.ByteOrder, ctx Context, offset uint64) ([]Range, error) {
	data := reg.Bytes(sections.DebugRnglists)
	if data == nil {
		return nil, dwerr.Missing("no .debug_rnglists section present")
	}
	cur := cursor.New(data, order)
	if err := cur.SeekTo(int(offset)); err != nil {
		return nil, err
	}

	base := ctx.LowPC
	var ranges []Range
	for {
		kindByte, err := cur.ReadU8()
		if err != nil {
			return nil, err
		}
		switch kindByte {
		case dwconst.RleEndOfList:
			return ranges, nil

		case dwconst.RleBaseAddressx:
			idx, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			base, err = addrtab.Read(reg, order, ctx.AddrBase, idx)
			if err != nil {
				return nil, err
			}

		case dwconst.RleStartxEndx:
			si, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			ei, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			s, err := addrtab.Read(reg, order, ctx.AddrBase, si)
			if err != nil {
				return nil, err
			}
			e, err := addrtab.Read(reg, order, ctx.AddrBase, ei)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, Range{Start: s, End: e})

		case dwconst.RleStartxLength:
			si, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			length, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			s, err := addrtab.Read(reg, order, ctx.AddrBase, si)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, Range{Start: s, End: s + length})

		case dwconst.RleOffsetPair:
			a, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			b, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, Range{Start: base + a, End: base + b})

		case dwconst.RleBaseAddress:
			abs, err := cur.ReadUintSized(ctx.AddrSize)
			if err != nil {
				return nil, err
			}
			base = abs

		case dwconst.RleStartEnd:
			a, err := cur.ReadUintSized(ctx.AddrSize)
			if err != nil {
				return nil, err
			}
			b, err := cur.ReadUintSized(ctx.AddrSize)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, Range{Start: a, End: b})

		case dwconst.RleStartLength:
			a, err := cur.ReadUintSized(ctx.AddrSize)
			if err != nil {
				return nil, err
			}
			length, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, Range{Start: a, End: a + length})

		default:
			return nil, dwerr.Bad(dwerr.KindGeneric, "unknown rnglist entry kind %#x", kindByte)
		}
	}
}

func addrSizeMax(n int) uint64 {
	if n >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * uint(n))) - 1
}

func iterateV4(reg *sections.Registry, order binary.ByteOrder, ctx Context, offset uint64) ([]Range, error) {
	data := reg.Bytes(sections.DebugRanges)
	if data == nil {
		return nil, dwerr.Missing("no .debug_ranges section present")
	}
	cur := cursor.New(data, order)
	if err := cur.SeekTo(int(offset)); err != nil {
		return nil, err
	}

	base := ctx.LowPC
	maxAddr := addrSizeMax(ctx.AddrSize)
	var ranges []Range
	for {
		a, err := cur.ReadUintSized(ctx.AddrSize)
		if err != nil {
			return nil, err
		}
		b, err := cur.ReadUintSized(ctx.AddrSize)
		if err != nil {
			return nil, err
		}
		if a == 0 && b == 0 {
			return ranges, nil
		}
		if a == maxAddr {
			base = b
			continue
		}
		ranges = append(ranges, Range{Start: base + a, End: base + b})
	}
}
