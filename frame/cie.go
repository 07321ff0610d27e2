package frame

import (
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
)

// CIE is a Common Information Entry: the template an FDE's call-frame
// instructions run against.
type CIE struct {
	LengthOffset int
	Format       cursor.Format
	Version      uint8

	AddressSize         int
	SegmentSelectorSize int

	AugStr  string
	AugData []byte

	CodeAlignmentFactor   uint64
	DataAlignmentFactor   int64
	ReturnAddressRegister uint64

	LsdaEnc            dwconst.EhPe
	PersonalityEnc     dwconst.EhPe
	PersonalityRoutine uint64
	HasPersonality     bool
	FdePointerEnc      dwconst.EhPe

	SignalFrame bool // augmentation 'S'
	BKeySigned  bool // augmentation 'B' (ARM pointer authentication)
	MTETagged   bool // augmentation 'G'

	InitialInstructions []byte
}

// IsSignalFrame reports whether the CIE's augmentation marks FDEs using it
// as signal-handler frames (DWARF CFI does not itself need this, but
// unwinders use it to decide whether to subtract 1 from a return address
// before the next lookup).
func (c *CIE) IsSignalFrame() bool { return c.SignalFrame }

// ParseCIE decodes a CIE body starting right after the id field
// ReadEntryHeader already consumed. nativeAddrSize is used for the legacy
// version-1/3 "eh" augmentation skip and as the absptr width for
// PersonalityRoutine when the CIE predates the explicit address_size field
// (version < 4).
func ParseCIE(cur *cursor.Cursor, header EntryHeader, nativeAddrSize int, ptrCtx PointerContext) (*CIE, error) {
	version, err := cur.ReadU8()
	if err != nil {
		return nil, err
	}
	if header.Kind == SectionEhFrame {
		if version != 1 && version != 3 {
			return nil, dwerr.Bad(dwerr.KindUnsupportedDwarfVersion, ".eh_frame CIE version %d is not 1 or 3", version)
		}
	} else if version != 4 {
		return nil, dwerr.Bad(dwerr.KindUnsupportedDwarfVersion, ".debug_frame CIE version %d is not 4", version)
	}

	augStr, err := cur.ReadCString()
	if err != nil {
		return nil, err
	}

	c := &CIE{LengthOffset: header.LengthOffset, Format: header.Format, Version: version, AugStr: augStr,
		LsdaEnc: dwconst.EhPeOmit, PersonalityEnc: dwconst.EhPeOmit, FdePointerEnc: dwconst.EhPeAbsptr}

	hasZ := len(augStr) > 0 && augStr[0] == 'z'
	hasEH := false
	for i, ch := range augStr {
		switch ch {
		case 'z':
			if i != 0 {
				return nil, dwerr.Bad(dwerr.KindGeneric, "augmentation character 'z' must be first, got %q", augStr)
			}
		case 'e':
			hasEH = true
		case 'h':
			if !hasEH {
				return nil, dwerr.Bad(dwerr.KindGeneric, "augmentation character 'h' without a preceding 'e' in %q", augStr)
			}
		case 'L', 'P', 'R', 'S', 'B', 'G':
			if !hasZ {
				return nil, dwerr.Bad(dwerr.KindGeneric, "augmentation character %q requires a leading 'z' in %q", ch, augStr)
			}
		default:
			return nil, dwerr.Bad(dwerr.KindGeneric, "unrecognized augmentation character %q in %q", ch, augStr)
		}
	}

	if hasEH {
		if _, err := cur.ReadBytes(nativeAddrSize); err != nil {
			return nil, err
		}
	}

	if version == 4 {
		as, err := cur.ReadU8()
		if err != nil {
			return nil, err
		}
		ss, err := cur.ReadU8()
		if err != nil {
			return nil, err
		}
		c.AddressSize, c.SegmentSelectorSize = int(as), int(ss)
	} else {
		c.AddressSize = nativeAddrSize
	}

	caf, err := cur.ReadULEB128()
	if err != nil {
		return nil, err
	}
	c.CodeAlignmentFactor = caf

	daf, err := cur.ReadSLEB128()
	if err != nil {
		return nil, err
	}
	c.DataAlignmentFactor = daf

	if version == 1 {
		rar, err := cur.ReadU8()
		if err != nil {
			return nil, err
		}
		c.ReturnAddressRegister = uint64(rar)
	} else {
		rar, err := cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		c.ReturnAddressRegister = rar
	}

	if hasZ {
		augLen, err := cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		augDataStart := cur.Pos()
		augData, err := cur.ReadBytes(int(augLen))
		if err != nil {
			return nil, err
		}
		c.AugData = augData

		subCur := cursor.New(augData, cur.ByteOrder())
		subCtx := ptrCtx
		subCtx.SectionBase = ptrCtx.SectionBase + uint64(augDataStart)

		for _, ch := range augStr[1:] {
			switch ch {
			case 'L':
				b, err := subCur.ReadU8()
				if err != nil {
					return nil, err
				}
				c.LsdaEnc = dwconst.EhPe(b)
			case 'P':
				b, err := subCur.ReadU8()
				if err != nil {
					return nil, err
				}
				c.PersonalityEnc = dwconst.EhPe(b)
				v, present, err := ReadEhPointer(subCur, c.PersonalityEnc, c.AddressSize, subCtx)
				if err != nil {
					return nil, err
				}
				if present {
					c.PersonalityRoutine, c.HasPersonality = v, true
				}
			case 'R':
				b, err := subCur.ReadU8()
				if err != nil {
					return nil, err
				}
				c.FdePointerEnc = dwconst.EhPe(b)
			case 'S':
				c.SignalFrame = true
			case 'B':
				c.BKeySigned = true
			case 'G':
				c.MTETagged = true
			}
		}
	}

	instr, err := cur.ReadBytes(header.EntryEnd - cur.Pos())
	if err != nil {
		return nil, err
	}
	c.InitialInstructions = instr
	return c, nil
}
