// Package addrtab resolves indices into .debug_addr, the DWARF5
// base-indexed address table referenced by the addrx family of forms and
// by .debug_rnglists' base_addressx/startx_* entries. Grounded on the
// offset arithmetic of github.com/go-delve/delve/pkg/dwarf/godwarf's
// DebugAddrSection/DebugAddr.Get, generalized to the closed set of address
// sizes the spec requires.
package addrtab

import (
	"encoding/binary"

	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/sections"
)

// Read returns the address-table element at index i for a compile unit
// whose AT_addr_base attribute is addrBase. addrBase must be at least 8,
// since the four bytes immediately preceding it are always the DWARF5
// .debug_addr header's version/address_size/segment_selector_size fields.
func Read(reg *sections.Registry, order binary.ByteOrder, addrBase uint64, index uint64) (uint64, error) {
	if addrBase < 8 {
		return 0, dwerr.Bad(dwerr.KindGeneric, "addr_base %d too small to precede a debug_addr header", addrBase)
	}
	data := reg.Bytes(sections.DebugAddr)
	if data == nil {
		return 0, dwerr.Missing("no .debug_addr section present")
	}

	cur := cursor.New(data, order)
	if err := cur.SeekTo(int(addrBase) - 4); err != nil {
		return 0, err
	}
	version, err := cur.ReadUint16()
	if err != nil {
		return 0, err
	}
	if version != 5 {
		return 0, dwerr.Bad(dwerr.KindUnsupportedDwarfVersion, ".debug_addr header version %d != 5", version)
	}
	addrSizeByte, err := cur.ReadU8()
	if err != nil {
		return 0, err
	}
	segSizeByte, err := cur.ReadU8()
	if err != nil {
		return 0, err
	}

	addrSize := int(addrSizeByte)
	switch addrSize {
	case 1, 2, 4, 8:
	default:
		return 0, dwerr.Bad(dwerr.KindUnsupportedAddrSize, ".debug_addr address size %d unsupported", addrSize)
	}
	elemSize := addrSize + int(segSizeByte)

	if err := cur.SeekTo(int(addrBase) + elemSize*int(index)); err != nil {
		return 0, err
	}
	if segSizeByte != 0 {
		if _, err := cur.ReadBytes(int(segSizeByte)); err != nil {
			return 0, err
		}
	}
	return cur.ReadUintSized(addrSize)
}
