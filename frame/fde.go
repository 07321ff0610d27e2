package frame

import (
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/internal/cursor"
)

// FDE is a Frame Description Entry: the instructions describing how to
// recover the caller's frame for one contiguous PC range.
type FDE struct {
	CIELengthOffset int
	CIE             *CIE

	PcBegin uint64
	PcRange uint64

	Lsda    uint64
	HasLsda bool

	AugData      []byte
	Instructions []byte
}

// Covers reports whether addr falls within the FDE's PC range.
func (f *FDE) Covers(addr uint64) bool {
	return addr >= f.PcBegin && addr < f.PcBegin+f.PcRange
}

// ParseFDE decodes an FDE body starting right after the id field
// ReadEntryHeader already consumed, using cie (already resolved by the
// caller via header.CIERefOffset) to know the fde_pointer_enc and whether
// an LSDA pointer follows. pc_begin is decoded with the CIE's full
// pointer-encoding byte, including any relative base; pc_range uses the
// same numeric form but never a relative base, since it is a length, not
// an address.
func ParseFDE(cur *cursor.Cursor, header EntryHeader, cie *CIE, nativeAddrSize int, ptrCtx PointerContext) (*FDE, error) {
	addrSize := nativeAddrSize
	if cie.AddressSize != 0 {
		addrSize = cie.AddressSize
	}

	pcBegin, _, err := ReadEhPointer(cur, cie.FdePointerEnc, addrSize, ptrCtx)
	if err != nil {
		return nil, err
	}

	rangeEnc := cie.FdePointerEnc & dwconst.EhPeFormMask
	pcRange, _, err := ReadEhPointer(cur, rangeEnc, addrSize, PointerContext{})
	if err != nil {
		return nil, err
	}

	fde := &FDE{CIELengthOffset: header.CIERefOffset, CIE: cie, PcBegin: pcBegin, PcRange: pcRange}

	if len(cie.AugStr) > 0 && cie.AugStr[0] == 'z' {
		augLen, err := cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		augDataStart := cur.Pos()
		augData, err := cur.ReadBytes(int(augLen))
		if err != nil {
			return nil, err
		}
		fde.AugData = augData

		if cie.LsdaEnc != dwconst.EhPeOmit {
			subCur := cursor.New(augData, cur.ByteOrder())
			subCtx := ptrCtx
			subCtx.SectionBase = ptrCtx.SectionBase + uint64(augDataStart)
			lsda, present, err := ReadEhPointer(subCur, cie.LsdaEnc, addrSize, subCtx)
			if err != nil {
				return nil, err
			}
			if present {
				fde.Lsda, fde.HasLsda = lsda, true
			}
		}
	}

	instr, err := cur.ReadBytes(header.EntryEnd - cur.Pos())
	if err != nil {
		return nil, err
	}
	fde.Instructions = instr
	return fde, nil
}
