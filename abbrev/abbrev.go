// Package abbrev decodes .debug_abbrev abbreviation tables and the
// FORM-tagged attribute values they describe, adapted from the parsing
// style of github.com/go-delve/delve/pkg/dwarf/line's formReader (which
// does the same job for the narrower DWARF5 line-table format) generalized
// to the full abbreviation-table grammar (DWARF5 section 7.5.3).
package abbrev

import (
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru"

	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
)

// AttrSpec is one (attribute, form) pair from an abbreviation, plus its
// implicit_const payload when the form calls for one.
type AttrSpec struct {
	Attr          dwconst.Attr
	Form          dwconst.Form
	ImplicitConst int64
}

// Abbreviation is a single (code, tag, has_children, attrs) entry.
type Abbreviation struct {
	Code        uint64
	Tag         dwconst.Tag
	HasChildren bool
	Attrs       []AttrSpec
}

// Table is a set of abbreviations keyed by their code, as decoded from one
// offset in .debug_abbrev. Codes are unique within a table but need not be
// dense.
type Table struct {
	byCode map[uint64]*Abbreviation
}

// Lookup returns the abbreviation for code, or false if this table has no
// such code.
func (t *Table) Lookup(code uint64) (*Abbreviation, bool) {
	a, ok := t.byCode[code]
	return a, ok
}

// abbrevCacheSize bounds the per-offset table cache. Real .debug_abbrev
// sections have one table per distinct debug_abbrev_offset a compile unit
// references, which in practice numbers in the tens to low hundreds even
// for large binaries; this is sized generously so the "no eviction"
// invariant (design notes, Abbreviation-cache eviction) holds in practice
// even though the underlying cache is technically an LRU.
const abbrevCacheSize = 4096

// Decoder parses abbreviation tables from a single .debug_abbrev section
// on demand and caches them by offset, as specified: "parsed at most once
// per offset."
type Decoder struct {
	data  []byte
	order binary.ByteOrder
	cache *lru.Cache
}

// NewDecoder returns a Decoder over the given .debug_abbrev bytes.
func NewDecoder(data []byte, order binary.ByteOrder) *Decoder {
	cache, err := lru.New(abbrevCacheSize)
	if err != nil {
		// lru.New only fails for a non-positive size, which abbrevCacheSize
		// never is.
		panic(err)
	}
	return &Decoder{data: data, order: order, cache: cache}
}

// Table returns the abbreviation table at offset, parsing it on first
// access.
func (d *Decoder) Table(offset uint64) (*Table, error) {
	if v, ok := d.cache.Get(offset); ok {
		return v.(*Table), nil
	}
	t, err := d.parseTable(offset)
	if err != nil {
		return nil, err
	}
	d.cache.Add(offset, t)
	return t, nil
}

func (d *Decoder) parseTable(offset uint64) (*Table, error) {
	if offset > uint64(len(d.data)) {
		return nil, dwerr.Bad(dwerr.KindGeneric, "abbrev table offset %#x beyond section end", offset)
	}
	cur := cursor.New(d.data, d.order)
	if err := cur.SeekTo(int(offset)); err != nil {
		return nil, err
	}

	table := &Table{byCode: make(map[uint64]*Abbreviation)}
	for {
		code, err := cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			return table, nil
		}

		tag, err := cur.ReadULEB128()
		if err != nil {
			return nil, err
		}

		hasChildrenByte, err := cur.ReadU8()
		if err != nil {
			return nil, err
		}
		if hasChildrenByte > 1 {
			return nil, dwerr.Bad(dwerr.KindGeneric, "abbrev code %d: invalid has_children byte %#x", code, hasChildrenByte)
		}

		var attrs []AttrSpec
		for {
			attrID, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			formID, err := cur.ReadULEB128()
			if err != nil {
				return nil, err
			}
			if attrID == 0 && formID == 0 {
				break
			}
			spec := AttrSpec{Attr: dwconst.Attr(attrID), Form: dwconst.Form(formID)}
			if spec.Form == dwconst.FormImplicitConst {
				spec.ImplicitConst, err = cur.ReadSLEB128()
				if err != nil {
					return nil, err
				}
			}
			attrs = append(attrs, spec)
		}

		if _, exists := table.byCode[code]; exists {
			return nil, dwerr.Bad(dwerr.KindGeneric, "duplicate abbreviation code %d", code)
		}
		table.byCode[code] = &Abbreviation{
			Code:        code,
			Tag:         dwconst.Tag(tag),
			HasChildren: hasChildrenByte == 1,
			Attrs:       attrs,
		}
	}
}
