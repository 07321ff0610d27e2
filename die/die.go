// Package die walks .debug_info compile units and materializes the
// subset of the DIE tree this decoder cares about: compile-unit root DIEs
// and function-like DIEs with their resolved names and PC ranges.
// Grounded on the two-pass scanning style of
// github.com/go-delve/delve/pkg/dwarf/reader (a single reader walking
// abbreviation-driven DIEs; the original does one combined pass building
// a full type-aware tree, this generalizes it into two bounded passes
// over a narrower retained model).
package die

import (
	"encoding/binary"

	"github.com/coredump-run/dwarfsym/abbrev"
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/rangelist"
	"github.com/coredump-run/dwarfsym/sections"
)

// AttrValue is one decoded (attribute, value) pair of a Die.
type AttrValue struct {
	Attr  dwconst.Attr
	Value abbrev.Value
}

// Die is a single Debugging Information Entry: a tag, a has_children
// flag, and its decoded attribute values.
type Die struct {
	Tag         dwconst.Tag
	HasChildren bool
	Attrs       []AttrValue
}

// Find returns the value of attr on d, if present.
func (d *Die) Find(attr dwconst.Attr) (abbrev.Value, bool) {
	for _, a := range d.Attrs {
		if a.Attr == attr {
			return a.Value, true
		}
	}
	return abbrev.Value{}, false
}

// PcRange is a half-open [Start, End) instruction address range.
type PcRange struct {
	Start uint64
	End   uint64
}

func (r *PcRange) contains(addr uint64) bool {
	return r != nil && addr >= r.Start && addr < r.End
}

// CompileUnit is the decoded header and root DIE of one .debug_info unit.
type CompileUnit struct {
	Offset int // absolute byte offset of the unit's initial-length field
	End    int // absolute byte offset one past the unit's last byte

	Version  uint16
	Format   cursor.Format
	AddrSize int

	AbbrevOffset uint64
	Root         *Die
	PcRange      *PcRange

	LowPC          uint64
	StrOffsetsBase uint64
	AddrBase       uint64
	RnglistsBase   uint64
	LoclistsBase   uint64
	FrameBase      *abbrev.Value
}

// Function is a retained subprogram-like DIE: its resolved name (possibly
// empty) and PC range (possibly nil).
type Function struct {
	Name  string
	Range *PcRange
}

// Index is the materialized result of scanning .debug_info: every
// retained compile unit and every retained function, in the order they
// were encountered.
type Index struct {
	CompileUnits []*CompileUnit
	Functions    []*Function

	// Logf, if non-nil, receives one line per recoverable anomaly this
	// index swallows rather than surfaces (e.g. a compile unit's AT_ranges
	// pointing into a range-list section that is not present). Nil means don't log,
	// matching pkg/dwarf/line.DebugLineInfo.Logf's default in the teacher.
	Logf func(string, ...interface{})

	reg   *sections.Registry
	order binary.ByteOrder
}

func (idx *Index) logf(format string, args ...interface{}) {
	if idx.Logf != nil {
		idx.Logf(format, args...)
	}
}

// Scan runs the function scan and the compile-unit scan over .debug_info,
// in that order, per the spec's two-pass design. nativeAddrSize is the
// fixed target address size (4 or 8) every unit's address_size field is
// checked against. logf, if non-nil, receives a line per recoverable
// anomaly encountered while resolving PC ranges or names; pass nil to
// disable this logging.
func Scan(reg *sections.Registry, dec *abbrev.Decoder, order binary.ByteOrder, nativeAddrSize int, logf func(string, ...interface{})) (*Index, error) {
	res := &Resolver{Reg: reg, Order: order, Logf: logf}

	funcs, err := scanFunctions(reg, dec, res, order, nativeAddrSize)
	if err != nil {
		return nil, err
	}
	cus, err := scanCompileUnits(reg, dec, res, order, nativeAddrSize)
	if err != nil {
		return nil, err
	}
	return &Index{CompileUnits: cus, Functions: funcs, reg: reg, order: order, Logf: logf}, nil
}

// FunctionNames returns the name of every retained function with a
// non-empty name, in scan order.
func (idx *Index) FunctionNames() []string {
	names := make([]string, 0, len(idx.Functions))
	for _, f := range idx.Functions {
		if f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return names
}

// GetSymbolName returns the name of the first named function, in scan
// order, whose PC range contains addr. The functions are searched
// linearly; when ranges nest, the innermost one is not preferred.
func (idx *Index) GetSymbolName(addr uint64) (string, bool) {
	for _, f := range idx.Functions {
		if f.Range.contains(addr) && f.Name != "" {
			return f.Name, true
		}
	}
	return "", false
}

// FindCompileUnit returns the first compile unit whose PC range (derived
// from AT_low_pc/AT_high_pc at scan time) contains addr, falling back to
// evaluating each unit's AT_ranges attribute directly if no simple range
// matched.
func (idx *Index) FindCompileUnit(addr uint64) (*CompileUnit, error) {
	for _, cu := range idx.CompileUnits {
		if cu.PcRange.contains(addr) {
			return cu, nil
		}
	}
	for _, cu := range idx.CompileUnits {
		if cu.Root == nil {
			continue
		}
		rangesV, ok := cu.Root.Find(dwconst.AttrRanges)
		if !ok {
			continue
		}
		ranges, err := rangelist.Iterate(idx.reg, idx.order, cu.rangeContext(), rangesV)
		if err != nil {
			if dwerr.IsMissing(err) {
				idx.logf("compile unit at %#x: AT_ranges unusable: %v", cu.Offset, err)
				continue
			}
			return nil, err
		}
		for _, rg := range ranges {
			if addr >= rg.Start && addr < rg.End {
				return cu, nil
			}
		}
	}
	return nil, dwerr.Missing("no compile unit contains address %#x", addr)
}

func (cu *CompileUnit) rangeContext() rangelist.Context {
	return rangelist.Context{
		Version:      cu.Version,
		Format:       cu.Format,
		AddrSize:     cu.AddrSize,
		LowPC:        cu.LowPC,
		RnglistsBase: cu.RnglistsBase,
		AddrBase:     cu.AddrBase,
	}
}
