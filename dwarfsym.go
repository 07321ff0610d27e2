// Package dwarfsym is the top-level façade over the decoding core:
// opening a Dwarf from a populated section registry, symbolizing an
// address against the DIE/CU index and line program, and answering
// unwind-info queries against the frame decoder. Grounded on
// github.com/go-delve/delve/pkg/proc/bininfo.go's role as the object that
// owns a binary's parsed debug sections and hands out symbolication
// queries, generalized here into a container-format-agnostic façade that
// composes die, line, and frame without depending on any ELF/Mach-O/PE
// reader itself.
package dwarfsym

import (
	"encoding/binary"

	"github.com/coredump-run/dwarfsym/abbrev"
	"github.com/coredump-run/dwarfsym/die"
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/frame"
	"github.com/coredump-run/dwarfsym/line"
	"github.com/coredump-run/dwarfsym/sections"
)

// Location is the result of symbolizing an address: the enclosing
// function name (if any) and the bracketing source line (if any).
type Location struct {
	Function    string
	HasFunction bool
	Source      line.SourceLocation
	HasSource   bool
}

// UnwindStep is the result of resolving an address to its call-frame
// entry: the FDE covering it and the CIE it was built against.
type UnwindStep struct {
	FDE *frame.FDE
	CIE *frame.CIE
}

// Dwarf is an opened debug-information object: a section registry plus
// the DIE/CU index and unwind table decoded from it.
type Dwarf struct {
	reg   *sections.Registry
	order binary.ByteOrder

	nativeAddrSize int

	dies       *die.Index
	frame      *frame.UnwindTable
	ehFrameHdr *frame.ExceptionFrameHeader

	// Logf, if non-nil, receives one line per recoverable decode anomaly
	// (see die.Index.Logf / die.Resolver.Logf). Bind this to a
	// *logrus.Entry's Printf-style method to wire the core into a CLI's
	// logging sink; nil disables logging entirely.
	Logf func(string, ...interface{})
}

// Options configures Open.
type Options struct {
	// NativeAddrSize is the target's address width in bytes (4 or 8).
	NativeAddrSize int
	// Logf is threaded into the DIE/CU index; see Dwarf.Logf.
	Logf func(string, ...interface{})
}

// Open scans reg's .debug_info (building the DIE/CU index) eagerly;
// .eh_frame/.debug_frame are scanned lazily on first unwind query via
// ScanAllUnwindInfo, since not every caller needs unwind info.
func Open(reg *sections.Registry, order binary.ByteOrder, opts Options) (*Dwarf, error) {
	addrSize := opts.NativeAddrSize
	if addrSize == 0 {
		addrSize = 8
	}

	dec := abbrev.NewDecoder(reg.Bytes(sections.DebugAbbrev), order)
	idx, err := die.Scan(reg, dec, order, addrSize, opts.Logf)
	if err != nil {
		return nil, err
	}

	return &Dwarf{reg: reg, order: order, nativeAddrSize: addrSize, dies: idx, Logf: opts.Logf}, nil
}

// ScanAllUnwindInfo resolves the unwind index used by Unwind: it first
// tries to parse .eh_frame_hdr, which lets each query binary-search the
// index and parse only the FDE (and CIE) it names; if .eh_frame_hdr is
// absent it falls back to a full .eh_frame/.debug_frame scan, building a
// sorted FDE list instead. Call this once before the first Unwind query
// (or let Unwind call it lazily with base 0). base is the runtime load
// address to use for pcrel/datarel resolution in sections whose registry
// entry carries no virtual address of its own, e.g. a manifest-fed
// section with no container to read one from.
func (d *Dwarf) ScanAllUnwindInfo(base uint64) error {
	if d.frame != nil || d.ehFrameHdr != nil {
		return nil
	}

	hdr, err := frame.ParseEhFrameHdr(d.reg, d.order, d.nativeAddrSize, base)
	if err == nil {
		d.ehFrameHdr = hdr
		return nil
	}
	if !dwerr.IsMissing(err) {
		return err
	}

	table, err := frame.ScanAll(d.reg, d.order, d.nativeAddrSize, frame.PointerContext{SectionBase: base})
	if err != nil {
		return err
	}
	d.frame = table
	return nil
}

// GetSymbolName returns the name of the first named function, in scan
// order, containing addr; when ranges nest, the innermost one is not
// preferred.
func (d *Dwarf) GetSymbolName(addr uint64) (string, bool) {
	return d.dies.GetSymbolName(addr)
}

// FunctionNames returns the name of every retained function that has a
// name, for callers
// that want to build their own lookup structure (e.g. the REPL's
// tab-completion trie).
func (d *Dwarf) FunctionNames() []string {
	return d.dies.FunctionNames()
}

// FindCompileUnit returns the compile unit containing addr.
func (d *Dwarf) FindCompileUnit(addr uint64) (*die.CompileUnit, error) {
	return d.dies.FindCompileUnit(addr)
}

// GetLineNumberInfo resolves addr to a source location, using the
// compile unit containing addr to supply AT_stmt_list/AT_comp_dir/
// str_offsets_base.
func (d *Dwarf) GetLineNumberInfo(addr uint64) (line.SourceLocation, error) {
	cu, err := d.dies.FindCompileUnit(addr)
	if err != nil {
		return line.SourceLocation{}, err
	}
	stmtListV, ok := cu.Root.Find(dwconst.AttrStmtList)
	if !ok {
		return line.SourceLocation{}, dwerr.Missing("compile unit at %#x has no AT_stmt_list", cu.Offset)
	}
	stmtList, ok := stmtListV.AsUint64()
	if !ok {
		return line.SourceLocation{}, dwerr.Bad(dwerr.KindGeneric, "AT_stmt_list is not an offset-producing value")
	}
	compDir := ""
	if cdV, ok := cu.Root.Find(dwconst.AttrCompDir); ok {
		res := &die.Resolver{Reg: d.reg, Order: d.order, Logf: d.Logf}
		if s, err := res.ResolveString(cdV, cu); err == nil {
			compDir = s
		}
	}
	return line.GetLineNumberInfo(d.reg, d.order, stmtList, compDir, cu.StrOffsetsBase, cu.AddrSize, addr)
}

// Symbolize combines GetSymbolName and GetLineNumberInfo into one
// best-effort Location: either piece missing is reported via the Has*
// flags rather than failing the whole call, since a caller typically
// wants whatever is available rather than an all-or-nothing result.
func (d *Dwarf) Symbolize(addr uint64) Location {
	var loc Location
	if name, ok := d.GetSymbolName(addr); ok {
		loc.Function, loc.HasFunction = name, true
	}
	if src, err := d.GetLineNumberInfo(addr); err == nil {
		loc.Source, loc.HasSource = src, true
	}
	return loc
}

// Unwind resolves addr to the FDE (and its CIE) describing how to
// recover the caller's frame, resolving the unwind index on first use
// (see ScanAllUnwindInfo).
func (d *Dwarf) Unwind(addr uint64) (UnwindStep, error) {
	if err := d.ScanAllUnwindInfo(0); err != nil {
		return UnwindStep{}, err
	}

	if d.ehFrameHdr != nil {
		fde, err := d.ehFrameHdr.FindFDE(d.reg, d.order, d.nativeAddrSize, 0, addr)
		if err != nil {
			return UnwindStep{}, err
		}
		return UnwindStep{FDE: fde, CIE: fde.CIE}, nil
	}

	fde, err := d.frame.FindFDE(addr)
	if err != nil {
		return UnwindStep{}, err
	}
	return UnwindStep{FDE: fde, CIE: fde.CIE}, nil
}

// Close releases owned section buffers. The Dwarf must not be used after
// Close.
func (d *Dwarf) Close() {
	d.reg.Teardown()
}
