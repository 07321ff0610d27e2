package frame

import (
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
)

// SectionKind distinguishes which section an entry header was read from,
// since the CIE sentinel and the FDE-to-CIE offset convention both differ
// between .eh_frame and .debug_frame.
type SectionKind int

const (
	SectionEhFrame SectionKind = iota
	SectionDebugFrame
)

// EntryKind is what ReadEntryHeader determined a frame entry to be.
type EntryKind int

const (
	EntryCIE EntryKind = iota
	EntryFDE
	EntryTerminator
)

// EntryHeader is the result of reading a frame entry's initial length and
// CIE-id field: enough to know what kind of entry follows and where it
// ends, without yet decoding its body.
type EntryHeader struct {
	Kind SectionKind

	EntryKind    EntryKind
	LengthOffset int // offset of this entry's initial-length field
	EntryEnd     int // offset one past the end of this entry
	Format       cursor.Format

	RawID int64 // the CIE-id/CIE-pointer field as read, for diagnostics

	// CIERefOffset is, for an EntryFDE, the length-field offset of the CIE
	// it refers to. Meaningless for EntryCIE and EntryTerminator.
	CIERefOffset int
}

// ReadEntryHeader reads one entry's initial length and CIE-id field.
// length == 0 produces an EntryTerminator. An entry is a CIE iff its id
// field equals the section's CIE sentinel: 0 for .eh_frame, 0xffffffff for
// 32-bit .debug_frame, and all-ones-64 for 64-bit .debug_frame. For FDEs
// in .eh_frame the id is self-relative (the referenced CIE's length-field
// offset is this entry's own length-field offset minus id); in
// .debug_frame the id is itself that absolute offset.
func ReadEntryHeader(cur *cursor.Cursor, kind SectionKind) (EntryHeader, error) {
	start := cur.Pos()
	uh, err := cur.ReadInitialLength()
	if err != nil {
		return EntryHeader{}, err
	}
	if uh.UnitLength == 0 {
		return EntryHeader{Kind: kind, EntryKind: EntryTerminator, LengthOffset: start, EntryEnd: start + uh.HeaderLength}, nil
	}
	entryEnd := start + uh.HeaderLength + int(uh.UnitLength)

	id, err := cur.ReadUintSized(uh.Format.OffsetSize())
	if err != nil {
		return EntryHeader{}, err
	}

	h := EntryHeader{Kind: kind, LengthOffset: start, EntryEnd: entryEnd, Format: uh.Format, RawID: int64(id)}

	var sentinel uint64
	switch {
	case kind == SectionEhFrame:
		sentinel = 0
	case uh.Format == cursor.Format32:
		sentinel = 0xffffffff
	default:
		sentinel = ^uint64(0)
	}

	if id == sentinel {
		h.EntryKind = EntryCIE
		return h, nil
	}

	h.EntryKind = EntryFDE
	if kind == SectionEhFrame {
		h.CIERefOffset = start - int(id)
	} else {
		h.CIERefOffset = int(id)
	}
	if h.CIERefOffset < 0 {
		return EntryHeader{}, dwerr.Bad(dwerr.KindGeneric, "FDE at %#x resolves to a negative CIE offset", start)
	}
	return h, nil
}
