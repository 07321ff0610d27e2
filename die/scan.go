package die

import (
	"encoding/binary"

	"github.com/coredump-run/dwarfsym/abbrev"
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/sections"
)

// unitPreamble is the decoded compile-unit header shared by both scan
// passes: initial length, version, and (version-dependent) unit type,
// address size, and abbrev offset.
type unitPreamble struct {
	Start        int
	End          int
	Version      uint16
	Format       cursor.Format
	AddrSize     int
	AbbrevOffset uint64
}

// readUnitPreamble reads one compile-unit header starting at the cursor's
// current position. done is true (with a nil error) if the header's unit
// length is zero, which the spec calls out as a clean scan terminator.
func readUnitPreamble(cur *cursor.Cursor, nativeAddrSize int) (unitPreamble, bool, error) {
	start := cur.Pos()
	header, err := cur.ReadInitialLength()
	if err != nil {
		return unitPreamble{}, false, err
	}
	if header.UnitLength == 0 {
		return unitPreamble{}, true, nil
	}
	end := start + header.HeaderLength + int(header.UnitLength)

	version, err := cur.ReadUint16()
	if err != nil {
		return unitPreamble{}, false, err
	}
	if version < 2 || version > 5 {
		return unitPreamble{}, false, dwerr.Bad(dwerr.KindUnsupportedDwarfVersion, "DWARF version %d unsupported", version)
	}

	var addrSize int
	var abbrevOffset uint64
	if version >= 5 {
		unitType, err := cur.ReadU8()
		if err != nil {
			return unitPreamble{}, false, err
		}
		if dwconst.UnitType(unitType) != dwconst.UnitTypeCompile {
			return unitPreamble{}, false, dwerr.Bad(dwerr.KindGeneric, "unit_type %#x is not DW_UT_compile", unitType)
		}
		as, err := cur.ReadU8()
		if err != nil {
			return unitPreamble{}, false, err
		}
		addrSize = int(as)
		abbrevOffset, err = cur.ReadUintSized(header.Format.OffsetSize())
		if err != nil {
			return unitPreamble{}, false, err
		}
	} else {
		abbrevOffset, err = cur.ReadUintSized(header.Format.OffsetSize())
		if err != nil {
			return unitPreamble{}, false, err
		}
		as, err := cur.ReadU8()
		if err != nil {
			return unitPreamble{}, false, err
		}
		addrSize = int(as)
	}

	if addrSize != nativeAddrSize {
		return unitPreamble{}, false, dwerr.Bad(dwerr.KindUnsupportedAddrSize, "unit address size %d does not match native size %d", addrSize, nativeAddrSize)
	}

	return unitPreamble{
		Start: start, End: end, Version: version,
		Format: header.Format, AddrSize: addrSize, AbbrevOffset: abbrevOffset,
	}, false, nil
}

// decodeDieAt reads one DIE (abbreviation code plus its attribute
// values) from the cursor's current position. isNull is true if the code
// is the null-DIE terminator (0); no attributes are read in that case.
func decodeDieAt(cur *cursor.Cursor, table *abbrev.Table, addrSize int, format cursor.Format) (*Die, bool, error) {
	code, err := cur.ReadULEB128()
	if err != nil {
		return nil, false, err
	}
	if code == 0 {
		return nil, true, nil
	}
	a, ok := table.Lookup(code)
	if !ok {
		return nil, false, dwerr.Bad(dwerr.KindGeneric, "unknown abbreviation code %d", code)
	}

	attrs := make([]AttrValue, 0, len(a.Attrs))
	for _, spec := range a.Attrs {
		v, err := abbrev.ParseForm(cur, spec.Form, addrSize, format, spec.ImplicitConst)
		if err != nil {
			return nil, false, err
		}
		attrs = append(attrs, AttrValue{Attr: spec.Attr, Value: v})
	}
	return &Die{Tag: a.Tag, HasChildren: a.HasChildren, Attrs: attrs}, false, nil
}

// scanFunctions is pass 1: walk every unit's DIEs, retaining the most
// recent compile-unit root's base attributes as context and materializing
// function-like DIEs into Functions.
func scanFunctions(reg *sections.Registry, dec *abbrev.Decoder, res *Resolver, order binary.ByteOrder, nativeAddrSize int) ([]*Function, error) {
	data := reg.Bytes(sections.DebugInfo)
	if data == nil {
		return nil, dwerr.Bad(dwerr.KindGeneric, "no .debug_info section present")
	}

	cur := cursor.New(data, order)
	var funcs []*Function
	for cur.Pos() < len(data) {
		pre, done, err := readUnitPreamble(cur, nativeAddrSize)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		table, err := dec.Table(pre.AbbrevOffset)
		if err != nil {
			return nil, err
		}

		cu := &CompileUnit{
			Offset: pre.Start, End: pre.End, Version: pre.Version,
			Format: pre.Format, AddrSize: pre.AddrSize, AbbrevOffset: pre.AbbrevOffset,
		}

		for cur.Pos() < pre.End {
			d, isNull, err := decodeDieAt(cur, table, pre.AddrSize, pre.Format)
			if err != nil {
				return nil, err
			}
			if isNull {
				continue
			}
			if d.Tag == dwconst.TagCompileUnit {
				applyCUBaseAttrs(res, cu, d)
				continue
			}
			if !d.Tag.FunctionLike() {
				continue
			}
			fn, err := buildFunction(reg, res, order, data, table, cu, d)
			if err != nil {
				return nil, err
			}
			if fn != nil {
				funcs = append(funcs, fn)
			}
		}
		if err := cur.SeekTo(pre.End); err != nil {
			return nil, err
		}
	}
	return funcs, nil
}

func buildFunction(reg *sections.Registry, res *Resolver, order binary.ByteOrder, data []byte, table *abbrev.Table, cu *CompileUnit, d *Die) (*Function, error) {
	name := resolveFunctionName(res, data, order, table, cu, d)
	pcRange, err := resolvePCRange(reg, order, res, cu, d)
	if err != nil {
		return nil, err
	}
	if name == "" && pcRange == nil {
		return nil, nil
	}
	return &Function{Name: name, Range: pcRange}, nil
}

// scanCompileUnits is pass 2: decode only each unit's root DIE, retaining
// it (with its attributes copied into storage independent of the scan's
// working cursor) as the unit's CompileUnit.
func scanCompileUnits(reg *sections.Registry, dec *abbrev.Decoder, res *Resolver, order binary.ByteOrder, nativeAddrSize int) ([]*CompileUnit, error) {
	data := reg.Bytes(sections.DebugInfo)
	if data == nil {
		return nil, dwerr.Bad(dwerr.KindGeneric, "no .debug_info section present")
	}

	cur := cursor.New(data, order)
	var cus []*CompileUnit
	for cur.Pos() < len(data) {
		pre, done, err := readUnitPreamble(cur, nativeAddrSize)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		table, err := dec.Table(pre.AbbrevOffset)
		if err != nil {
			return nil, err
		}

		d, isNull, err := decodeDieAt(cur, table, pre.AddrSize, pre.Format)
		if err != nil {
			return nil, err
		}
		if isNull || d.Tag != dwconst.TagCompileUnit {
			return nil, dwerr.Bad(dwerr.KindGeneric, "unit at offset %#x has no root DW_TAG_compile_unit DIE", pre.Start)
		}
		owned := make([]AttrValue, len(d.Attrs))
		copy(owned, d.Attrs)
		d.Attrs = owned

		cu := &CompileUnit{
			Offset: pre.Start, End: pre.End, Version: pre.Version,
			Format: pre.Format, AddrSize: pre.AddrSize, AbbrevOffset: pre.AbbrevOffset,
			Root: d,
		}
		applyCUBaseAttrs(res, cu, d)
		pcRange, err := resolvePCRange(reg, order, res, cu, d)
		if err != nil {
			return nil, err
		}
		cu.PcRange = pcRange
		if v, ok := d.Find(dwconst.AttrFrameBase); ok {
			cu.FrameBase = &v
		}

		cus = append(cus, cu)
		if err := cur.SeekTo(pre.End); err != nil {
			return nil, err
		}
	}
	return cus, nil
}
