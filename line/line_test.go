package line

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coredump-run/dwarfsym/sections"
)

// buildV4Fixture assembles a minimal DWARF4 .debug_line program with one
// file, no extra directories, and two rows: (0x1000, line 10) and
// (0x1010, line 11), followed by an end_sequence.
func buildV4Fixture(t *testing.T) []byte {
	t.Helper()
	le := binary.LittleEndian

	var program bytes.Buffer
	// DW_LNE_set_address 0x1000
	program.WriteByte(0)
	program.WriteByte(9) // size: subopcode + 8-byte address
	program.WriteByte(2) // DW_LNE_set_address
	var addrBuf [8]byte
	le.PutUint64(addrBuf[:], 0x1000)
	program.Write(addrBuf[:])
	// DW_LNS_advance_line +9 -> line 10
	program.WriteByte(3)
	program.WriteByte(9)
	// DW_LNS_copy -> commit row (0x1000, line 10)
	program.WriteByte(1)
	// DW_LNS_advance_pc +0x10
	program.WriteByte(2)
	program.WriteByte(0x10)
	// DW_LNS_advance_line +1 -> line 11
	program.WriteByte(3)
	program.WriteByte(1)
	// DW_LNS_copy -> commit row (0x1010, line 11)
	program.WriteByte(1)
	// DW_LNS_advance_pc +0x8, so the end_sequence row brackets 0x1010
	program.WriteByte(2)
	program.WriteByte(0x8)
	// DW_LNE_end_sequence
	program.WriteByte(0)
	program.WriteByte(1)
	program.WriteByte(1)

	var header bytes.Buffer
	binary.Write(&header, le, uint16(4)) // version
	// header_length placeholder, filled below
	var preHeaderLen bytes.Buffer
	preHeaderLen.WriteByte(1)    // minimum_instruction_length
	preHeaderLen.WriteByte(1)    // maximum_operations_per_instruction (v4+)
	preHeaderLen.WriteByte(1)    // default_is_stmt
	preHeaderLen.WriteByte(0xfb) // line_base = -5
	preHeaderLen.WriteByte(14)   // line_range
	preHeaderLen.WriteByte(13)   // opcode_base
	preHeaderLen.Write([]byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1})
	preHeaderLen.WriteByte(0) // include_directories terminator (none)
	preHeaderLen.WriteString("main.c")
	preHeaderLen.WriteByte(0)
	preHeaderLen.WriteByte(0) // dir_index 0 (comp_dir)
	preHeaderLen.WriteByte(0) // mtime
	preHeaderLen.WriteByte(0) // size
	preHeaderLen.WriteByte(0) // file_names terminator

	binary.Write(&header, le, uint32(preHeaderLen.Len()))
	header.Write(preHeaderLen.Bytes())
	header.Write(program.Bytes())

	var unit bytes.Buffer
	binary.Write(&unit, le, uint32(header.Len()))
	unit.Write(header.Bytes())
	return unit.Bytes()
}

func TestGetLineNumberInfoMatchesBracketingRow(t *testing.T) {
	reg := sections.NewRegistry()
	reg.Set(sections.DebugLine, &sections.Section{Data: buildV4Fixture(t)})

	loc, err := GetLineNumberInfo(reg, binary.LittleEndian, 0, "/src", 0, 8, 0x1008)
	require.NoError(t, err)
	require.Equal(t, "/src/main.c", loc.File)
	require.Equal(t, 10, loc.Line)
}

func TestGetLineNumberInfoNoMatch(t *testing.T) {
	reg := sections.NewRegistry()
	reg.Set(sections.DebugLine, &sections.Section{Data: buildV4Fixture(t)})

	_, err := GetLineNumberInfo(reg, binary.LittleEndian, 0, "/src", 0, 8, 0x5000)
	require.Error(t, err)
}

func TestGetLineNumberInfoExactBoundary(t *testing.T) {
	reg := sections.NewRegistry()
	reg.Set(sections.DebugLine, &sections.Section{Data: buildV4Fixture(t)})

	loc, err := GetLineNumberInfo(reg, binary.LittleEndian, 0, "/src", 0, 8, 0x1010)
	require.NoError(t, err)
	require.Equal(t, 11, loc.Line)
}
