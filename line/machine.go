package line

import (
	"github.com/coredump-run/dwarfsym/dwerr"
	"github.com/coredump-run/dwarfsym/internal/cursor"
)

// Extended opcodes (DWARF section 6.2.5.3).
const (
	lneEndSequence = 1
	lneSetAddress  = 2
	lneDefineFile  = 3
)

// Standard opcodes (DWARF section 6.2.5.2).
const (
	lnsCopy           = 1
	lnsAdvancePC      = 2
	lnsAdvanceLine    = 3
	lnsSetFile        = 4
	lnsSetColumn      = 5
	lnsNegateStmt     = 6
	lnsSetBasicBlock  = 7
	lnsConstAddPC     = 8
	lnsFixedAdvancePC = 9
	lnsSetPrologueEnd = 10
)

type rowState struct {
	address     uint64
	file        uint64
	line        int64
	column      uint64
	isStmt      bool
	basicBlock  bool
	endSequence bool
}

func initialRowState(h *Header) rowState {
	return rowState{file: 1, line: 1, isStmt: h.DefaultIsStmt}
}

// run drives the opcode stream starting at the cursor's current position
// (the first opcode byte) looking for the row that brackets target,
// matching on the previous committed row per checkLineMatch.
func run(h *Header, cur *cursor.Cursor, target uint64) (SourceLocation, error) {
	st := initialRowState(h)
	var prev rowState
	prevValid := false

	commit := func() (SourceLocation, bool, error) {
		var loc SourceLocation
		matched := false
		if prevValid && prev.address <= target && target < st.address {
			name, err := h.resolveFileName(prev.file)
			if err != nil {
				return SourceLocation{}, false, err
			}
			loc = SourceLocation{File: name, Line: int(prev.line), Column: int(prev.column)}
			matched = true
		}
		prev = st
		prevValid = true
		return loc, matched, nil
	}

	for cur.Pos() < h.UnitEnd {
		opcode, err := cur.ReadU8()
		if err != nil {
			return SourceLocation{}, err
		}

		switch {
		case opcode == 0:
			size, err := cur.ReadULEB128()
			if err != nil {
				return SourceLocation{}, err
			}
			opEnd := cur.Pos() + int(size)
			subopcode, err := cur.ReadU8()
			if err != nil {
				return SourceLocation{}, err
			}
			switch subopcode {
			case lneEndSequence:
				st.endSequence = true
				loc, matched, err := commit()
				if err != nil {
					return SourceLocation{}, err
				}
				if matched {
					return loc, nil
				}
				st = initialRowState(h)
				prevValid = false
			case lneSetAddress:
				addr, err := cur.ReadUintSized(h.AddrSize)
				if err != nil {
					return SourceLocation{}, err
				}
				st.address = addr
			case lneDefineFile:
				name, err := cur.ReadCString()
				if err != nil {
					return SourceLocation{}, err
				}
				dirIdx, err := cur.ReadULEB128()
				if err != nil {
					return SourceLocation{}, err
				}
				mtime, err := cur.ReadULEB128()
				if err != nil {
					return SourceLocation{}, err
				}
				size2, err := cur.ReadULEB128()
				if err != nil {
					return SourceLocation{}, err
				}
				h.Files = append(h.Files, FileEntry{Path: name, DirIndex: dirIdx, Mtime: mtime, Size: size2})
			}
			if err := cur.SeekTo(opEnd); err != nil {
				return SourceLocation{}, err
			}

		case opcode < h.OpcodeBase:
			switch opcode {
			case lnsCopy:
				loc, matched, err := commit()
				if err != nil {
					return SourceLocation{}, err
				}
				if matched {
					return loc, nil
				}
				st.basicBlock = false
			case lnsAdvancePC:
				adv, err := cur.ReadULEB128()
				if err != nil {
					return SourceLocation{}, err
				}
				st.address += adv * uint64(h.MinInstLength)
			case lnsAdvanceLine:
				delta, err := cur.ReadSLEB128()
				if err != nil {
					return SourceLocation{}, err
				}
				st.line += delta
			case lnsSetFile:
				f, err := cur.ReadULEB128()
				if err != nil {
					return SourceLocation{}, err
				}
				st.file = f
			case lnsSetColumn:
				c, err := cur.ReadULEB128()
				if err != nil {
					return SourceLocation{}, err
				}
				st.column = c
			case lnsNegateStmt:
				st.isStmt = !st.isStmt
			case lnsSetBasicBlock:
				st.basicBlock = true
			case lnsConstAddPC:
				adjusted := 255 - int(h.OpcodeBase)
				st.address += uint64(adjusted/int(h.LineRange)) * uint64(h.MinInstLength)
			case lnsFixedAdvancePC:
				d, err := cur.ReadUint16()
				if err != nil {
					return SourceLocation{}, err
				}
				st.address += uint64(d)
			case lnsSetPrologueEnd:
				// no state change
			default:
				idx := int(opcode) - 1
				if idx < 0 || idx >= len(h.StandardOpcodeLengths) {
					return SourceLocation{}, dwerr.Bad(dwerr.KindGeneric, "standard opcode %d has no operand-count entry", opcode)
				}
				for i := 0; i < int(h.StandardOpcodeLengths[idx]); i++ {
					if _, err := cur.ReadULEB128(); err != nil {
						return SourceLocation{}, err
					}
				}
			}

		default:
			adjusted := int(opcode) - int(h.OpcodeBase)
			st.address += uint64(adjusted/int(h.LineRange)) * uint64(h.MinInstLength)
			st.line += int64(h.LineBase) + int64(adjusted%int(h.LineRange))
			loc, matched, err := commit()
			if err != nil {
				return SourceLocation{}, err
			}
			if matched {
				return loc, nil
			}
			st.basicBlock = false
		}
	}

	return SourceLocation{}, dwerr.Missing("address %#x not found in line program", target)
}
