package abbrev

import (
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
)

// ValueKind distinguishes the shape of a decoded Value: a plain scalar, a
// byte blob, an inline string, or one of the base-indexed indirections
// (strx/addrx/loclistx/rnglistx) that must be resolved against a compile
// unit's *_base attribute before use.
type ValueKind int

const (
	KindAddr ValueKind = iota
	KindAddrx
	KindBlock
	KindUdata
	KindSdata
	KindData16
	KindExprloc
	KindFlag
	KindSecOffset
	KindRef
	KindRefAddr
	KindRefSig8
	KindString
	KindStrp
	KindStrx
	KindLineStrp
	KindLoclistx
	KindRnglistx
)

// Value is the decoded form of one attribute's value, still in its raw,
// possibly-indirect shape; resolving strx/addrx/loclistx/rnglistx indices
// into actual strings, addresses, or list offsets is the DIE/CU decoder's
// job, since it requires the owning compile unit's base attributes.
type Value struct {
	Kind  ValueKind
	U64   uint64 // addr, addrx/strx/loclistx/rnglistx index, udata, sec_offset, ref (CU-relative), ref_addr, ref_sig8, strp, line_strp
	I64   int64  // sdata
	Bytes []byte // block, exprloc, data16 (borrowed, zero-copy)
	Str   string // DW_FORM_string (inline NUL-terminated)
	Flag  bool
}

// maxIndirectDepth bounds DW_FORM_indirect recursion against a
// pathologically (or adversarially) self-referential abbreviation.
const maxIndirectDepth = 8

// ParseForm reads one attribute value of the given form from cur.
// addrSize is the target's address size in bytes (4 or 8); format selects
// 32- or 64-bit offset width for sec_offset-shaped forms; implicitConst is
// the abbreviation-supplied constant for DW_FORM_implicit_const (its value
// is never read from the data stream).
func ParseForm(cur *cursor.Cursor, form dwconst.Form, addrSize int, format cursor.Format, implicitConst int64) (Value, error) {
	return parseFormDepth(cur, form, addrSize, format, implicitConst, 0)
}

func parseFormDepth(cur *cursor.Cursor, form dwconst.Form, addrSize int, format cursor.Format, implicitConst int64, depth int) (Value, error) {
	if depth > maxIndirectDepth {
		return Value{}, dwerr.Bad(dwerr.KindGeneric, "DW_FORM_indirect nested too deeply")
	}

	switch form {
	case dwconst.FormAddr:
		v, err := cur.ReadUintSized(addrSize)
		return Value{Kind: KindAddr, U64: v}, err

	case dwconst.FormBlock1:
		n, err := cur.ReadU8()
		if err != nil {
			return Value{}, err
		}
		b, err := cur.ReadBytes(int(n))
		return Value{Kind: KindBlock, Bytes: b}, err

	case dwconst.FormBlock2:
		n, err := cur.ReadUint16()
		if err != nil {
			return Value{}, err
		}
		b, err := cur.ReadBytes(int(n))
		return Value{Kind: KindBlock, Bytes: b}, err

	case dwconst.FormBlock4:
		n, err := cur.ReadUint32()
		if err != nil {
			return Value{}, err
		}
		b, err := cur.ReadBytes(int(n))
		return Value{Kind: KindBlock, Bytes: b}, err

	case dwconst.FormBlock:
		n, err := cur.ReadULEB128()
		if err != nil {
			return Value{}, err
		}
		b, err := cur.ReadBytes(int(n))
		return Value{Kind: KindBlock, Bytes: b}, err

	case dwconst.FormExprloc:
		n, err := cur.ReadULEB128()
		if err != nil {
			return Value{}, err
		}
		b, err := cur.ReadBytes(int(n))
		return Value{Kind: KindExprloc, Bytes: b}, err

	case dwconst.FormData1:
		v, err := cur.ReadU8()
		return Value{Kind: KindUdata, U64: uint64(v)}, err
	case dwconst.FormData2:
		v, err := cur.ReadUint16()
		return Value{Kind: KindUdata, U64: uint64(v)}, err
	case dwconst.FormData4:
		v, err := cur.ReadUint32()
		return Value{Kind: KindUdata, U64: uint64(v)}, err
	case dwconst.FormData8:
		v, err := cur.ReadUint64()
		return Value{Kind: KindUdata, U64: v}, err
	case dwconst.FormData16:
		b, err := cur.ReadBytes(16)
		return Value{Kind: KindData16, Bytes: b}, err

	case dwconst.FormString:
		s, err := cur.ReadCString()
		return Value{Kind: KindString, Str: s}, err

	case dwconst.FormFlag:
		v, err := cur.ReadU8()
		return Value{Kind: KindFlag, Flag: v != 0}, err

	case dwconst.FormFlagPresent:
		return Value{Kind: KindFlag, Flag: true}, nil

	case dwconst.FormSdata:
		v, err := cur.ReadSLEB128()
		return Value{Kind: KindSdata, I64: v}, err

	case dwconst.FormUdata:
		v, err := cur.ReadULEB128()
		return Value{Kind: KindUdata, U64: v}, err

	case dwconst.FormStrp:
		v, err := cur.ReadUintSized(format.OffsetSize())
		return Value{Kind: KindStrp, U64: v}, err

	case dwconst.FormLineStrp:
		v, err := cur.ReadUintSized(format.OffsetSize())
		return Value{Kind: KindLineStrp, U64: v}, err

	case dwconst.FormSecOffset:
		v, err := cur.ReadUintSized(format.OffsetSize())
		return Value{Kind: KindSecOffset, U64: v}, err

	case dwconst.FormRefAddr:
		v, err := cur.ReadUintSized(format.OffsetSize())
		return Value{Kind: KindRefAddr, U64: v}, err

	case dwconst.FormRef1:
		v, err := cur.ReadU8()
		return Value{Kind: KindRef, U64: uint64(v)}, err
	case dwconst.FormRef2:
		v, err := cur.ReadUint16()
		return Value{Kind: KindRef, U64: uint64(v)}, err
	case dwconst.FormRef4:
		v, err := cur.ReadUint32()
		return Value{Kind: KindRef, U64: uint64(v)}, err
	case dwconst.FormRef8:
		v, err := cur.ReadUint64()
		return Value{Kind: KindRef, U64: v}, err
	case dwconst.FormRefUdata:
		v, err := cur.ReadULEB128()
		return Value{Kind: KindRef, U64: v}, err
	case dwconst.FormRefSig8:
		v, err := cur.ReadUint64()
		return Value{Kind: KindRefSig8, U64: v}, err

	case dwconst.FormStrx:
		v, err := cur.ReadULEB128()
		return Value{Kind: KindStrx, U64: v}, err
	case dwconst.FormStrx1:
		v, err := cur.ReadU8()
		return Value{Kind: KindStrx, U64: uint64(v)}, err
	case dwconst.FormStrx2:
		v, err := cur.ReadUint16()
		return Value{Kind: KindStrx, U64: uint64(v)}, err
	case dwconst.FormStrx3:
		v, err := cur.ReadUint24()
		return Value{Kind: KindStrx, U64: uint64(v)}, err
	case dwconst.FormStrx4:
		v, err := cur.ReadUint32()
		return Value{Kind: KindStrx, U64: uint64(v)}, err

	case dwconst.FormAddrx:
		v, err := cur.ReadULEB128()
		return Value{Kind: KindAddrx, U64: v}, err
	case dwconst.FormAddrx1:
		v, err := cur.ReadU8()
		return Value{Kind: KindAddrx, U64: uint64(v)}, err
	case dwconst.FormAddrx2:
		v, err := cur.ReadUint16()
		return Value{Kind: KindAddrx, U64: uint64(v)}, err
	case dwconst.FormAddrx3:
		v, err := cur.ReadUint24()
		return Value{Kind: KindAddrx, U64: uint64(v)}, err
	case dwconst.FormAddrx4:
		v, err := cur.ReadUint32()
		return Value{Kind: KindAddrx, U64: uint64(v)}, err

	case dwconst.FormLoclistx:
		v, err := cur.ReadULEB128()
		return Value{Kind: KindLoclistx, U64: v}, err
	case dwconst.FormRnglistx:
		v, err := cur.ReadULEB128()
		return Value{Kind: KindRnglistx, U64: v}, err

	case dwconst.FormImplicitConst:
		return Value{Kind: KindSdata, I64: implicitConst}, nil

	case dwconst.FormIndirect:
		actual, err := cur.ReadULEB128()
		if err != nil {
			return Value{}, err
		}
		return parseFormDepth(cur, dwconst.Form(actual), addrSize, format, implicitConst, depth+1)

	case dwconst.FormRefSup4:
		v, err := cur.ReadUint32()
		return Value{Kind: KindRef, U64: uint64(v)}, err
	case dwconst.FormRefSup8:
		v, err := cur.ReadUint64()
		return Value{Kind: KindRef, U64: v}, err
	case dwconst.FormStrpSup:
		v, err := cur.ReadUintSized(format.OffsetSize())
		return Value{Kind: KindStrp, U64: v}, err

	default:
		return Value{}, dwerr.Bad(dwerr.KindGeneric, "unsupported form %#x", form)
	}
}

// AsUint64 returns the value's scalar payload as a uint64 for the forms
// that carry one (everything except block/exprloc/data16/string/sdata/flag).
func (v Value) AsUint64() (uint64, bool) {
	switch v.Kind {
	case KindAddr, KindAddrx, KindUdata, KindSecOffset, KindRef, KindRefAddr, KindRefSig8,
		KindStrp, KindStrx, KindLineStrp, KindLoclistx, KindRnglistx:
		return v.U64, true
	}
	return 0, false
}
