package frame

import (
	"encoding/binary"

	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/sections"
)

// ExceptionFrameHeader is a parsed .eh_frame_hdr: a binary-searchable
// index from PC to the byte offset of the FDE covering it, so an
// unwinder need not scan the whole .eh_frame section.
type ExceptionFrameHeader struct {
	EhFramePtr    uint64
	TableEncoding dwconst.EhPe
	FdeCount      uint64

	// entries is the raw (fde_count * EntrySize)-byte binary-search table,
	// borrowed from the section; each entry is an (initial_pc, fde_ptr) pair
	// encoded per TableEncoding.
	entries   []byte
	EntrySize int

	// base is the runtime address of byte 0 of .eh_frame_hdr, used to
	// resolve pcrel/datarel table entries during the search.
	base uint64

	// tableStart is entries' byte offset within .eh_frame_hdr, so
	// base+tableStart is the runtime address of entries[0].
	tableStart int
}

// entrySizeForEncoding returns the on-disk width of one half of a table
// entry (pc or fde_ptr) for the three encodings .eh_frame_hdr producers
// actually use; the full entry is twice this.
func entrySizeForEncoding(enc dwconst.EhPe) (int, error) {
	switch enc & dwconst.EhPeFormMask {
	case dwconst.EhPeUdata2, dwconst.EhPeSdata2:
		return 2, nil
	case dwconst.EhPeUdata4, dwconst.EhPeSdata4:
		return 4, nil
	case dwconst.EhPeUdata8, dwconst.EhPeSdata8:
		return 8, nil
	default:
		return 0, dwerr.Bad(dwerr.KindGeneric, "unsupported eh_frame_hdr table encoding %#x", enc)
	}
}

// ParseEhFrameHdr decodes the .eh_frame_hdr section: a fixed 4-byte
// header (version, three encoding bytes) followed by eh_frame_ptr,
// fde_count, and a binary-search table of fde_count (pc, fde_ptr) pairs,
// each half encoded per table_encoding. base is the runtime load address
// to use for pcrel resolution if the section's registry entry carries no
// virtual address of its own (e.g. a manifest-fed section with no
// container to read one from).
func ParseEhFrameHdr(reg *sections.Registry, order binary.ByteOrder, nativeAddrSize int, base uint64) (*ExceptionFrameHeader, error) {
	sec := reg.Get(sections.EhFrameHdr)
	if sec == nil || len(sec.Data) == 0 {
		return nil, dwerr.Missing("no .eh_frame_hdr section present")
	}
	if sec.VirtualAddress != nil {
		base = *sec.VirtualAddress
	}

	cur := cursor.New(sec.Data, order)
	version, err := cur.ReadU8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, dwerr.Bad(dwerr.KindUnsupportedDwarfVersion, "eh_frame_hdr version %d is not 1", version)
	}
	ehFramePtrEnc, err := cur.ReadU8()
	if err != nil {
		return nil, err
	}
	fdeCountEnc, err := cur.ReadU8()
	if err != nil {
		return nil, err
	}
	tableEnc, err := cur.ReadU8()
	if err != nil {
		return nil, err
	}
	if dwconst.EhPe(ehFramePtrEnc) == dwconst.EhPeOmit || dwconst.EhPe(fdeCountEnc) == dwconst.EhPeOmit || dwconst.EhPe(tableEnc) == dwconst.EhPeOmit {
		return nil, dwerr.Bad(dwerr.KindGeneric, "eh_frame_hdr carries an omit encoding in a required field")
	}

	ptrCtx := PointerContext{SectionBase: base}
	ehFramePtr, _, err := ReadEhPointer(cur, dwconst.EhPe(ehFramePtrEnc), nativeAddrSize, ptrCtx)
	if err != nil {
		return nil, err
	}
	fdeCount, _, err := ReadEhPointer(cur, dwconst.EhPe(fdeCountEnc), nativeAddrSize, ptrCtx)
	if err != nil {
		return nil, err
	}

	half, err := entrySizeForEncoding(dwconst.EhPe(tableEnc))
	if err != nil {
		return nil, err
	}
	entrySize := half * 2
	tableStart := cur.Pos()
	tableBytes, err := cur.ReadBytes(int(fdeCount) * entrySize)
	if err != nil {
		return nil, err
	}

	return &ExceptionFrameHeader{
		EhFramePtr: ehFramePtr, TableEncoding: dwconst.EhPe(tableEnc), FdeCount: fdeCount,
		entries: tableBytes, EntrySize: entrySize, base: base, tableStart: tableStart,
	}, nil
}

// readTablePC decodes the initial-pc half of table entry i. pc_rel_base
// is pointer(entries[0]) = h.base+h.tableStart: ReadEhPointer adds the
// cursor's own read position (== off, after SeekTo) on top of SectionBase,
// so SectionBase must not itself already include off.
func (h *ExceptionFrameHeader) readTablePC(order binary.ByteOrder, nativeAddrSize int, i int) (uint64, error) {
	off := i * h.EntrySize
	cur := cursor.New(h.entries, order)
	if err := cur.SeekTo(off); err != nil {
		return 0, err
	}
	ctx := PointerContext{SectionBase: h.base + uint64(h.tableStart), DataRelBase: h.base, HasDataRel: true}
	v, _, err := ReadEhPointer(cur, h.TableEncoding, nativeAddrSize, ctx)
	return v, err
}

// readTableFDEPtr decodes the fde_ptr half of table entry i. See
// readTablePC for why SectionBase excludes off.
func (h *ExceptionFrameHeader) readTableFDEPtr(order binary.ByteOrder, nativeAddrSize int, i int) (uint64, error) {
	off := i*h.EntrySize + h.EntrySize/2
	cur := cursor.New(h.entries, order)
	if err := cur.SeekTo(off); err != nil {
		return 0, err
	}
	ctx := PointerContext{SectionBase: h.base + uint64(h.tableStart), DataRelBase: h.base, HasDataRel: true}
	v, _, err := ReadEhPointer(cur, h.TableEncoding, nativeAddrSize, ctx)
	return v, err
}

// FindEntry binary-searches the table for the entry whose initial PC is
// the greatest value not exceeding pc, returning the byte offset of the
// FDE it names within .eh_frame (fde_ptr - EhFramePtr). Each probe
// resolves its pc half with pc_rel_base = pointer(entry) and
// data_rel_base = pointer(.eh_frame_hdr), per the table_encoding.
func (h *ExceptionFrameHeader) FindEntry(order binary.ByteOrder, nativeAddrSize int, pc uint64) (int, error) {
	n := int(h.FdeCount)
	if n == 0 {
		return 0, dwerr.Missing("eh_frame_hdr table is empty")
	}

	left, length := 0, n
	for length > 1 {
		half := length / 2
		mid := left + half
		midPC, err := h.readTablePC(order, nativeAddrSize, mid)
		if err != nil {
			return 0, err
		}
		if pc < midPC {
			length = half
		} else {
			left = mid
			length -= half
		}
	}

	leftPC, err := h.readTablePC(order, nativeAddrSize, left)
	if err != nil {
		return 0, err
	}
	if pc < leftPC {
		return 0, dwerr.Missing("no eh_frame_hdr entry covers pc %#x", pc)
	}

	fdePtr, err := h.readTableFDEPtr(order, nativeAddrSize, left)
	if err != nil {
		return 0, err
	}
	if fdePtr < h.EhFramePtr {
		return 0, dwerr.Bad(dwerr.KindGeneric, "eh_frame_hdr entry %d fde_ptr %#x precedes eh_frame_ptr %#x", left, fdePtr, h.EhFramePtr)
	}
	return int(fdePtr - h.EhFramePtr), nil
}

// FindFDE resolves pc to its FDE using h's binary-search table: it locates
// the FDE's byte offset within .eh_frame via FindEntry, then parses only
// that FDE and the CIE it references, instead of scanning the whole
// section. base is used as .eh_frame's runtime address when the registry
// entry carries none of its own.
func (h *ExceptionFrameHeader) FindFDE(reg *sections.Registry, order binary.ByteOrder, nativeAddrSize int, base uint64, pc uint64) (*FDE, error) {
	offset, err := h.FindEntry(order, nativeAddrSize, pc)
	if err != nil {
		return nil, err
	}

	sec := reg.Get(sections.EhFrame)
	if sec == nil || len(sec.Data) == 0 {
		return nil, dwerr.Missing("eh_frame_hdr refers to .eh_frame but no such section is present")
	}
	if sec.VirtualAddress != nil {
		base = *sec.VirtualAddress
	}
	ptrCtx := PointerContext{SectionBase: base}

	cur := cursor.New(sec.Data, order)
	if err := cur.SeekTo(offset); err != nil {
		return nil, err
	}
	header, err := ReadEntryHeader(cur, SectionEhFrame)
	if err != nil {
		return nil, err
	}
	if header.EntryKind != EntryFDE {
		return nil, dwerr.Bad(dwerr.KindGeneric, "eh_frame_hdr entry names .eh_frame offset %#x, which is not an FDE", offset)
	}

	cieCur := cursor.New(sec.Data, order)
	if err := cieCur.SeekTo(header.CIERefOffset); err != nil {
		return nil, err
	}
	cieHeader, err := ReadEntryHeader(cieCur, SectionEhFrame)
	if err != nil {
		return nil, err
	}
	if cieHeader.EntryKind != EntryCIE {
		return nil, dwerr.Bad(dwerr.KindGeneric, "FDE at .eh_frame offset %#x references non-CIE entry at %#x", offset, header.CIERefOffset)
	}
	cie, err := ParseCIE(cieCur, cieHeader, nativeAddrSize, ptrCtx)
	if err != nil {
		return nil, err
	}

	fde, err := ParseFDE(cur, header, cie, nativeAddrSize, ptrCtx)
	if err != nil {
		return nil, err
	}
	if !fde.Covers(pc) {
		return nil, dwerr.Missing("no FDE covers address %#x", pc)
	}
	return fde, nil
}
