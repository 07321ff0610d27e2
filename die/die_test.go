package die

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	abbrevpkg "github.com/coredump-run/dwarfsym/abbrev"
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/sections"
)

// buildFixture assembles a minimal v4, 32-bit, 8-byte-address .debug_info
// and .debug_abbrev pair describing one compile unit with two functions.
func buildFixture(t *testing.T) *sections.Registry {
	t.Helper()
	le := binary.LittleEndian

	var abbrevBuf bytes.Buffer
	// code 1: DW_TAG_compile_unit, children, name/low_pc/high_pc
	abbrevBuf.Write([]byte{1, byte(dwconst.TagCompileUnit), 1})
	abbrevBuf.Write([]byte{byte(dwconst.AttrName), byte(dwconst.FormString)})
	abbrevBuf.Write([]byte{byte(dwconst.AttrLowpc), byte(dwconst.FormAddr)})
	abbrevBuf.Write([]byte{byte(dwconst.AttrHighpc), byte(dwconst.FormData8)})
	abbrevBuf.Write([]byte{0, 0})
	// code 2: DW_TAG_subprogram, no children, name/low_pc/high_pc
	abbrevBuf.Write([]byte{2, byte(dwconst.TagSubprogram), 0})
	abbrevBuf.Write([]byte{byte(dwconst.AttrName), byte(dwconst.FormString)})
	abbrevBuf.Write([]byte{byte(dwconst.AttrLowpc), byte(dwconst.FormAddr)})
	abbrevBuf.Write([]byte{byte(dwconst.AttrHighpc), byte(dwconst.FormData8)})
	abbrevBuf.Write([]byte{0, 0})
	abbrevBuf.WriteByte(0)

	cstr := func(b *bytes.Buffer, s string) {
		b.WriteString(s)
		b.WriteByte(0)
	}
	u64 := func(b *bytes.Buffer, v uint64) {
		var tmp [8]byte
		le.PutUint64(tmp[:], v)
		b.Write(tmp[:])
	}

	var body bytes.Buffer
	// unit header body (after unit_length): version, abbrev_offset, addr_size
	binary.Write(&body, le, uint16(4))
	binary.Write(&body, le, uint32(0)) // debug_abbrev_offset
	body.WriteByte(8)                  // address_size

	// DIE 1: compile_unit
	body.WriteByte(1)
	cstr(&body, "cu")
	u64(&body, 0x1000)
	u64(&body, 0x100) // high_pc offset -> end 0x1100

	// DIE 2: subprogram f1
	body.WriteByte(2)
	cstr(&body, "f1")
	u64(&body, 0x1000)
	u64(&body, 0x50) // end 0x1050

	// DIE 3: subprogram f2
	body.WriteByte(2)
	cstr(&body, "f2")
	u64(&body, 0x1050)
	u64(&body, 0x50) // end 0x10a0

	body.WriteByte(0) // null DIE closing CU children

	var info bytes.Buffer
	binary.Write(&info, le, uint32(body.Len()))
	info.Write(body.Bytes())

	reg := sections.NewRegistry()
	reg.Set(sections.DebugInfo, &sections.Section{Data: info.Bytes()})
	reg.Set(sections.DebugAbbrev, &sections.Section{Data: abbrevBuf.Bytes()})
	return reg
}

func TestScanFindsFunctionsAndCompileUnit(t *testing.T) {
	reg := buildFixture(t)
	dec := abbrevpkg.NewDecoder(reg.Bytes(sections.DebugAbbrev), binary.LittleEndian)

	idx, err := Scan(reg, dec, binary.LittleEndian, 8, nil)
	require.NoError(t, err)
	require.Len(t, idx.CompileUnits, 1)
	require.Len(t, idx.Functions, 2)

	require.Equal(t, "f1", idx.Functions[0].Name)
	require.Equal(t, "f2", idx.Functions[1].Name)
	require.Equal(t, &PcRange{Start: 0x1050, End: 0x10a0}, idx.Functions[1].Range)

	cu, err := idx.FindCompileUnit(0x1060)
	require.NoError(t, err)
	require.Equal(t, &PcRange{Start: 0x1000, End: 0x1100}, cu.PcRange)

	name, ok := idx.GetSymbolName(0x1060)
	require.True(t, ok)
	require.Equal(t, "f2", name)

	_, err = idx.FindCompileUnit(0xdead)
	require.Error(t, err)
}

// buildAddrxFixture assembles a v4, 32-bit, 8-byte-address .debug_info/
// .debug_abbrev pair whose compile unit carries AT_addr_base (sec_offset)
// and whose AT_low_pc attributes (on both the CU and its one subprogram)
// use DW_FORM_addrx, indexing a synthetic .debug_addr table. Exercises the
// addrx path of resolvePCRange/applyCUBaseAttrs: AsUint64 on an addrx
// value would return the raw index (0, 1) rather than the address it
// names, so a regression would show up as a PcRange of {1,1+0x50} instead
// of the table's actual addresses.
func buildAddrxFixture(t *testing.T) *sections.Registry {
	t.Helper()
	le := binary.LittleEndian

	var abbrevBuf bytes.Buffer
	// code 1: DW_TAG_compile_unit, children, addr_base/low_pc
	abbrevBuf.Write([]byte{1, byte(dwconst.TagCompileUnit), 1})
	abbrevBuf.Write([]byte{byte(dwconst.AttrAddrBase), byte(dwconst.FormSecOffset)})
	abbrevBuf.Write([]byte{byte(dwconst.AttrLowpc), byte(dwconst.FormAddrx)})
	abbrevBuf.Write([]byte{0, 0})
	// code 2: DW_TAG_subprogram, no children, name/low_pc(addrx)/high_pc
	abbrevBuf.Write([]byte{2, byte(dwconst.TagSubprogram), 0})
	abbrevBuf.Write([]byte{byte(dwconst.AttrName), byte(dwconst.FormString)})
	abbrevBuf.Write([]byte{byte(dwconst.AttrLowpc), byte(dwconst.FormAddrx)})
	abbrevBuf.Write([]byte{byte(dwconst.AttrHighpc), byte(dwconst.FormData8)})
	abbrevBuf.Write([]byte{0, 0})
	abbrevBuf.WriteByte(0)

	cstr := func(b *bytes.Buffer, s string) {
		b.WriteString(s)
		b.WriteByte(0)
	}
	u64 := func(b *bytes.Buffer, v uint64) {
		var tmp [8]byte
		le.PutUint64(tmp[:], v)
		b.Write(tmp[:])
	}

	const addrBase = 8 // .debug_addr table starts right after its 8-byte header

	var body bytes.Buffer
	binary.Write(&body, le, uint16(4))
	binary.Write(&body, le, uint32(0)) // debug_abbrev_offset
	body.WriteByte(8)                  // address_size

	// DIE 1: compile_unit. addr_base must precede low_pc in the body
	// since that's the order the abbrev above declares the attributes.
	body.WriteByte(1)
	binary.Write(&body, le, uint32(addrBase)) // AT_addr_base
	body.WriteByte(0)                         // AT_low_pc addrx index 0 -> 0x2000

	// DIE 2: subprogram f1, low_pc addrx index 1 -> 0x3000
	body.WriteByte(2)
	cstr(&body, "f1")
	body.WriteByte(1) // AT_low_pc addrx index 1
	u64(&body, 0x50)  // high_pc offset -> end 0x3050

	body.WriteByte(0) // null DIE closing CU children

	var info bytes.Buffer
	binary.Write(&info, le, uint32(body.Len()))
	info.Write(body.Bytes())

	var addrTab bytes.Buffer
	binary.Write(&addrTab, le, uint32(0)) // unused by addrtab.Read
	binary.Write(&addrTab, le, uint16(5)) // version
	addrTab.WriteByte(8)                  // address_size
	addrTab.WriteByte(0)                  // segment_selector_size
	u64(&addrTab, 0x2000)                 // index 0
	u64(&addrTab, 0x3000)                 // index 1

	reg := sections.NewRegistry()
	reg.Set(sections.DebugInfo, &sections.Section{Data: info.Bytes()})
	reg.Set(sections.DebugAbbrev, &sections.Section{Data: abbrevBuf.Bytes()})
	reg.Set(sections.DebugAddr, &sections.Section{Data: addrTab.Bytes()})
	return reg
}

func TestScanResolvesAddrxLowPCThroughDebugAddr(t *testing.T) {
	reg := buildAddrxFixture(t)
	dec := abbrevpkg.NewDecoder(reg.Bytes(sections.DebugAbbrev), binary.LittleEndian)

	idx, err := Scan(reg, dec, binary.LittleEndian, 8, nil)
	require.NoError(t, err)
	require.Len(t, idx.CompileUnits, 1)
	require.Len(t, idx.Functions, 1)

	require.Equal(t, uint64(0x2000), idx.CompileUnits[0].LowPC)
	require.Equal(t, &PcRange{Start: 0x3000, End: 0x3050}, idx.Functions[0].Range)

	name, ok := idx.GetSymbolName(0x3010)
	require.True(t, ok)
	require.Equal(t, "f1", name)
}

func TestScanRequiresDebugInfo(t *testing.T) {
	reg := sections.NewRegistry()
	dec := abbrevpkg.NewDecoder(nil, binary.LittleEndian)
	_, err := Scan(reg, dec, binary.LittleEndian, 8, nil)
	require.Error(t, err)
}
