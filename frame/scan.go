package frame

import (
	"encoding/binary"
	"sort"

	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/sections"
)

// UnwindTable is the result of a full scan of the available unwind
// sections: every CIE in scan order (each FDE points to its own via
// FDE.CIE), and every FDE, sorted ascending by PcBegin so
// binary search can find the FDE covering a PC without an
// .eh_frame_hdr index.
type UnwindTable struct {
	CIEs []*CIE
	FDEs []*FDE
}

// FindFDE returns the first FDE covering addr, or a MissingDebugInfo
// error. FDEs is sorted by PcBegin; this does a straightforward binary
// search for the last entry with PcBegin <= addr and checks Covers.
func (t *UnwindTable) FindFDE(addr uint64) (*FDE, error) {
	i := sort.Search(len(t.FDEs), func(i int) bool { return t.FDEs[i].PcBegin > addr }) - 1
	if i < 0 || !t.FDEs[i].Covers(addr) {
		return nil, dwerr.Missing("no FDE covers address %#x", addr)
	}
	return t.FDEs[i], nil
}

// ScanAll walks every entry of .eh_frame and .debug_frame (whichever are
// present) building the CIE/FDE table from scratch, for binaries that
// carry no .eh_frame_hdr index. Sections are scanned independently since
// an FDE's CIE offset is always relative to its own section.
func ScanAll(reg *sections.Registry, order binary.ByteOrder, nativeAddrSize int, ptrCtx PointerContext) (*UnwindTable, error) {
	table := &UnwindTable{}

	sectionsToScan := []struct {
		id   sections.ID
		kind SectionKind
	}{
		{sections.EhFrame, SectionEhFrame},
		{sections.DebugFrame, SectionDebugFrame},
	}

	for _, s := range sectionsToScan {
		sec := reg.Get(s.id)
		if sec == nil || len(sec.Data) == 0 {
			continue
		}
		localCtx := ptrCtx
		if sec.VirtualAddress != nil {
			localCtx.SectionBase = *sec.VirtualAddress
		}

		cieByOffset := make(map[int]*CIE)
		cur := cursor.New(sec.Data, order)
		for cur.Pos() < len(sec.Data) {
			header, err := ReadEntryHeader(cur, s.kind)
			if err != nil {
				return nil, err
			}
			if header.EntryKind == EntryTerminator {
				break
			}

			switch header.EntryKind {
			case EntryCIE:
				cie, err := ParseCIE(cur, header, nativeAddrSize, localCtx)
				if err != nil {
					return nil, err
				}
				cieByOffset[header.LengthOffset] = cie
				table.CIEs = append(table.CIEs, cie)
			case EntryFDE:
				cie, ok := cieByOffset[header.CIERefOffset]
				if !ok {
					return nil, dwerr.Bad(dwerr.KindGeneric, "FDE at %#x in %s references unknown CIE at %#x", header.LengthOffset, s.id, header.CIERefOffset)
				}
				fde, err := ParseFDE(cur, header, cie, nativeAddrSize, localCtx)
				if err != nil {
					return nil, err
				}
				table.FDEs = append(table.FDEs, fde)
			}

			if err := cur.SeekTo(header.EntryEnd); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(table.FDEs, func(i, j int) bool { return table.FDEs[i].PcBegin < table.FDEs[j].PcBegin })
	return table, nil
}
