package die

import (
	"encoding/binary"

	"github.com/coredump-run/dwarfsym/abbrev"
	"github.com/coredump-run/dwarfsym/addrtab"
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/rangelist"
	"github.com/coredump-run/dwarfsym/sections"
)

// Resolver turns the raw, possibly-indirect FormValues a Die carries into
// actual strings and addresses, consulting the compile unit's *_base
// attributes for the indexed forms (strx, addrx).
type Resolver struct {
	Reg   *sections.Registry
	Order binary.ByteOrder

	// Logf, if non-nil, receives one line per recoverable anomaly
	// resolution swallows (e.g. a function's AT_ranges being well-formed
	// but unusable). Nil means don't log.
	Logf func(string, ...interface{})
}

func (r *Resolver) logf(format string, args ...interface{}) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// ResolveString returns the string named by v, which must be one of the
// string-producing FormValue kinds (string, strp, line_strp, strx).
func (r *Resolver) ResolveString(v abbrev.Value, cu *CompileUnit) (string, error) {
	switch v.Kind {
	case abbrev.KindString:
		return v.Str, nil
	case abbrev.KindStrp:
		return r.readCStringAt(sections.DebugStr, v.U64)
	case abbrev.KindLineStrp:
		return r.readCStringAt(sections.DebugLineStr, v.U64)
	case abbrev.KindStrx:
		return r.resolveStrx(cu, v.U64)
	default:
		return "", dwerr.Bad(dwerr.KindGeneric, "value kind %d does not produce a string", v.Kind)
	}
}

// ResolveAddr returns the address named by v, which must be addr or addrx.
func (r *Resolver) ResolveAddr(v abbrev.Value, cu *CompileUnit) (uint64, error) {
	switch v.Kind {
	case abbrev.KindAddr:
		return v.U64, nil
	case abbrev.KindAddrx:
		return addrtab.Read(r.Reg, r.Order, cu.AddrBase, v.U64)
	default:
		return 0, dwerr.Bad(dwerr.KindGeneric, "value kind %d does not produce an address", v.Kind)
	}
}

func (r *Resolver) readCStringAt(id sections.ID, offset uint64) (string, error) {
	data := r.Reg.Bytes(id)
	if data == nil {
		return "", dwerr.Missing("section %s not present", id)
	}
	cur := cursor.New(data, r.Order)
	if err := cur.SeekTo(int(offset)); err != nil {
		return "", err
	}
	return cur.ReadCString()
}

func (r *Resolver) resolveStrx(cu *CompileUnit, index uint64) (string, error) {
	if cu.StrOffsetsBase == 0 {
		return "", dwerr.Bad(dwerr.KindGeneric, "strx form used without a str_offsets_base")
	}
	data := r.Reg.Bytes(sections.DebugStrOffsets)
	if data == nil {
		return "", dwerr.Missing("no .debug_str_offsets section present")
	}
	slotSize := cu.Format.OffsetSize()
	cur := cursor.New(data, r.Order)
	if err := cur.SeekTo(int(cu.StrOffsetsBase) + int(index)*slotSize); err != nil {
		return "", err
	}
	off, err := cur.ReadUintSized(slotSize)
	if err != nil {
		return "", err
	}
	return r.readCStringAt(sections.DebugStr, off)
}

// resolveFunctionName implements the name-resolution chase: use AT_name if
// present, otherwise follow AT_abstract_origin or AT_specification to
// another DIE in the same unit and retry, at most three hops.
func resolveFunctionName(res *Resolver, data []byte, order binary.ByteOrder, table *abbrev.Table, cu *CompileUnit, start *Die) string {
	d := start
	for hop := 0; hop < 3; hop++ {
		if v, ok := d.Find(dwconst.AttrName); ok {
			if name, err := res.ResolveString(v, cu); err == nil && name != "" {
				return name
			}
		}

		v, ok := d.Find(dwconst.AttrAbstractOrigin)
		if !ok {
			v, ok = d.Find(dwconst.AttrSpecification)
		}
		if !ok {
			return ""
		}

		var target int
		switch v.Kind {
		case abbrev.KindRef:
			target = cu.Offset + int(v.U64)
		case abbrev.KindRefAddr:
			target = int(v.U64)
		default:
			return ""
		}
		if target < cu.Offset || target >= cu.End {
			return ""
		}

		chase := cursor.New(data, order)
		if err := chase.SeekTo(target); err != nil {
			return ""
		}
		nd, isNull, err := decodeDieAt(chase, table, cu.AddrSize, cu.Format)
		if err != nil || isNull {
			return ""
		}
		d = nd
	}
	return ""
}

// isAddrKind reports whether v's kind produces an address (absolute or
// addrx-indexed), as opposed to a plain constant.
func isAddrKind(k abbrev.ValueKind) bool {
	return k == abbrev.KindAddr || k == abbrev.KindAddrx
}

// resolvePCRange implements PC-range derivation: AT_low_pc plus
// AT_high_pc (absolute or low_pc-relative per its form), falling back to
// AT_ranges via the range iterator. A MissingDebugInfo error from the
// range iterator is folded into "no range" rather than propagated, per
// the one narrowly-scoped swallow the error-handling design allows.
// AT_low_pc/AT_high_pc always resolve through Resolver.ResolveAddr rather
// than Value.AsUint64 when they carry an addrx form, since AsUint64 would
// otherwise hand back the raw .debug_addr index instead of the address it
// names.
func resolvePCRange(reg *sections.Registry, order binary.ByteOrder, res *Resolver, cu *CompileUnit, d *Die) (*PcRange, error) {
	if lowV, ok := d.Find(dwconst.AttrLowpc); ok && isAddrKind(lowV.Kind) {
		if low, err := res.ResolveAddr(lowV, cu); err == nil {
			if highV, ok := d.Find(dwconst.AttrHighpc); ok {
				if isAddrKind(highV.Kind) {
					if hi, err := res.ResolveAddr(highV, cu); err == nil {
						return &PcRange{Start: low, End: hi}, nil
					}
				} else if hi, ok := highV.AsUint64(); ok {
					return &PcRange{Start: low, End: low + hi}, nil
				}
			}
		}
	}

	rangesV, ok := d.Find(dwconst.AttrRanges)
	if !ok {
		return nil, nil
	}
	ctx := rangelist.Context{
		Version:      cu.Version,
		Format:       cu.Format,
		AddrSize:     cu.AddrSize,
		LowPC:        cu.LowPC,
		RnglistsBase: cu.RnglistsBase,
		AddrBase:     cu.AddrBase,
	}
	ranges, err := rangelist.Iterate(reg, order, ctx, rangesV)
	if err != nil {
		if dwerr.IsMissing(err) {
			res.logf("die at cu %#x: AT_ranges unusable: %v", cu.Offset, err)
			return nil, nil
		}
		return nil, err
	}
	if len(ranges) == 0 {
		return nil, nil
	}
	start, end := ranges[0].Start, ranges[0].End
	for _, rg := range ranges[1:] {
		if rg.Start < start {
			start = rg.Start
		}
		if rg.End > end {
			end = rg.End
		}
	}
	return &PcRange{Start: start, End: end}, nil
}

// applyCUBaseAttrs copies the *_base and low_pc attributes a compile-unit
// root DIE carries into cu, for use by functions scanned under it. The
// *_base attributes are .debug_addr/.debug_str_offsets/.debug_rnglists/
// .debug_loclists section offsets, not addresses, so AsUint64 is correct
// for them; AT_low_pc is resolved last, through res so an addrx-encoded
// low_pc can use the AddrBase just installed.
func applyCUBaseAttrs(res *Resolver, cu *CompileUnit, d *Die) {
	if v, ok := d.Find(dwconst.AttrStrOffsetsBase); ok {
		if off, ok := v.AsUint64(); ok {
			cu.StrOffsetsBase = off
		}
	}
	if v, ok := d.Find(dwconst.AttrAddrBase); ok {
		if off, ok := v.AsUint64(); ok {
			cu.AddrBase = off
		}
	}
	if v, ok := d.Find(dwconst.AttrRnglistsBase); ok {
		if off, ok := v.AsUint64(); ok {
			cu.RnglistsBase = off
		}
	}
	if v, ok := d.Find(dwconst.AttrLoclistsBase); ok {
		if off, ok := v.AsUint64(); ok {
			cu.LoclistsBase = off
		}
	}
	if v, ok := d.Find(dwconst.AttrLowpc); ok && isAddrKind(v.Kind) {
		if addr, err := res.ResolveAddr(v, cu); err == nil {
			cu.LowPC = addr
		}
	}
}
