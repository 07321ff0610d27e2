// Package containersec extracts named DWARF/eh_frame sections out of an
// ELF, Mach-O, or PE executable and installs them into a sections.Registry.
// Grounded on the teacher's pkg/dwarf/godwarf/sections.go
// (GetDebugSectionElf/GetDebugSectionPE/GetDebugSectionMacho), generalized
// from "return one named section's bytes" to "populate every section the
// core understands, plus the runtime virtual address needed for pcrel
// pointer resolution in .eh_frame". Used only by cmd/dwarfsym; the core
// library never imports debug/elf, debug/macho, or debug/pe.
package containersec

import (
	"bytes"
	"compress/zlib"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/coredump-run/dwarfsym/sections"
)

// sectionNames maps a sections.ID to the ELF/Mach-O section-name suffix
// used to look it up (".debug_" + suffix on ELF/PE, "__debug_" + suffix on
// Mach-O). eh_frame is looked up without the "debug" prefix (".eh_frame",
// or "__eh_frame" on Mach-O); eh_frame_hdr is looked up only on ELF.
var sectionNames = map[sections.ID]string{
	sections.DebugInfo:       "info",
	sections.DebugAbbrev:     "abbrev",
	sections.DebugStr:        "str",
	sections.DebugStrOffsets: "str_offsets",
	sections.DebugLine:       "line",
	sections.DebugLineStr:    "line_str",
	sections.DebugRanges:     "ranges",
	sections.DebugLoclists:   "loclists",
	sections.DebugRnglists:   "rnglists",
	sections.DebugAddr:       "addr",
	sections.DebugNames:      "names",
	sections.DebugFrame:      "frame",
}

// FromELF populates reg with every section found in f.
func FromELF(f *elf.File, reg *sections.Registry) error {
	for id, suffix := range sectionNames {
		data, addr, ok, err := elfSection(f, ".debug_"+suffix)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		set(reg, id, data, addr)
	}
	if data, addr, ok, err := elfSection(f, ".eh_frame"); err != nil {
		return err
	} else if ok {
		set(reg, sections.EhFrame, data, addr)
	}
	if data, addr, ok, err := elfSection(f, ".eh_frame_hdr"); err != nil {
		return err
	} else if ok {
		set(reg, sections.EhFrameHdr, data, addr)
	}
	return nil
}

func elfSection(f *elf.File, name string) (data []byte, addr uint64, ok bool, err error) {
	sec := f.Section(name)
	if sec == nil {
		sec = f.Section(zdebugName(name))
		if sec == nil {
			return nil, 0, false, nil
		}
		raw, err := sec.Data()
		if err != nil {
			return nil, 0, false, err
		}
		data, err = decompressMaybe(raw)
		if err != nil {
			return nil, 0, false, err
		}
		return data, sec.Addr, true, nil
	}
	data, err = sec.Data()
	if err != nil {
		return nil, 0, false, err
	}
	return data, sec.Addr, true, nil
}

// FromMachO populates reg with every section found in f.
func FromMachO(f *macho.File, reg *sections.Registry) error {
	for id, suffix := range sectionNames {
		data, addr, ok, err := machoSection(f, "__debug_"+suffix)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		set(reg, id, data, addr)
	}
	if data, addr, ok, err := machoSection(f, "__eh_frame"); err != nil {
		return err
	} else if ok {
		set(reg, sections.EhFrame, data, addr)
	}
	return nil
}

func machoSection(f *macho.File, name string) (data []byte, addr uint64, ok bool, err error) {
	sec := f.Section(name)
	if sec == nil {
		sec = f.Section("__z" + name[2:])
		if sec == nil {
			return nil, 0, false, nil
		}
		raw, err := sec.Data()
		if err != nil {
			return nil, 0, false, err
		}
		data, err = decompressMaybe(raw)
		if err != nil {
			return nil, 0, false, err
		}
		return data, sec.Addr, true, nil
	}
	data, err = sec.Data()
	if err != nil {
		return nil, 0, false, err
	}
	return data, sec.Addr, true, nil
}

// FromPE populates reg with every section found in f. PE binaries carry
// .eh_frame only when built by a mingw/gcc-family toolchain; absent
// sections are simply skipped.
func FromPE(f *pe.File, reg *sections.Registry) error {
	for id, suffix := range sectionNames {
		data, addr, ok, err := peSectionByName(f, ".debug_"+suffix)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		set(reg, id, data, addr)
	}
	if data, addr, ok, err := peSectionByName(f, ".eh_frame"); err != nil {
		return err
	} else if ok {
		set(reg, sections.EhFrame, data, addr)
	}
	return nil
}

func peSectionByName(f *pe.File, name string) (data []byte, addr uint64, ok bool, err error) {
	sec := f.Section(name)
	if sec == nil {
		sec = f.Section(zdebugName(name))
		if sec == nil {
			return nil, 0, false, nil
		}
		raw, err := peSectionData(sec)
		if err != nil {
			return nil, 0, false, err
		}
		data, err = decompressMaybe(raw)
		if err != nil {
			return nil, 0, false, err
		}
		return data, uint64(sec.VirtualAddress), true, nil
	}
	data, err = peSectionData(sec)
	if err != nil {
		return nil, 0, false, err
	}
	return data, uint64(sec.VirtualAddress), true, nil
}

func peSectionData(sec *pe.Section) ([]byte, error) {
	b, err := sec.Data()
	if err != nil {
		return nil, err
	}
	if 0 < sec.VirtualSize && sec.VirtualSize < sec.Size {
		b = b[:sec.VirtualSize]
	}
	return b, nil
}

func zdebugName(name string) string {
	switch {
	case len(name) > 1 && name[0] == '.':
		return ".z" + name[1:]
	case len(name) > 2 && name[:2] == "__":
		return "__z" + name[2:]
	default:
		return name
	}
}

func set(reg *sections.Registry, id sections.ID, data []byte, addr uint64) {
	sec := &sections.Section{Data: data, Owned: true}
	if addr != 0 {
		sec.VirtualAddress = &addr
	}
	reg.Set(id, sec)
}

func decompressMaybe(b []byte) ([]byte, error) {
	if len(b) < 12 || string(b[:4]) != "ZLIB" {
		return b, nil
	}
	dlen := binary.BigEndian.Uint64(b[4:12])
	dbuf := make([]byte, dlen)
	r, err := zlib.NewReader(bytes.NewReader(b[12:]))
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, dbuf); err != nil {
		return nil, err
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	return dbuf, nil
}

// Open detects the container format of the file at path by its magic
// bytes and returns a populated sections.Registry plus a close function
// that closes the underlying file.
func Open(path string) (*sections.Registry, func() error, error) {
	reg := sections.NewRegistry()

	if f, err := elf.Open(path); err == nil {
		if err := FromELF(f, reg); err != nil {
			f.Close()
			return nil, nil, err
		}
		return reg, f.Close, nil
	}
	if f, err := macho.Open(path); err == nil {
		if err := FromMachO(f, reg); err != nil {
			f.Close()
			return nil, nil, err
		}
		return reg, f.Close, nil
	}
	if f, err := pe.Open(path); err == nil {
		if err := FromPE(f, reg); err != nil {
			f.Close()
			return nil, nil, err
		}
		return reg, f.Close, nil
	}
	return nil, nil, fmt.Errorf("%s: unrecognized executable format", path)
}
