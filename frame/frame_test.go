package frame

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/sections"
)

// buildEhFrameFixture assembles a 32-bit .eh_frame section with one CIE
// carrying a "zR" augmentation (FdePointerEnc = absptr) and three FDEs
// against it, each with disjoint PC ranges.
func buildEhFrameFixture(t *testing.T) ([]byte, []uint64, []uint64) {
	t.Helper()
	le := binary.LittleEndian
	var sec bytes.Buffer

	var cieBody bytes.Buffer
	binary.Write(&cieBody, le, uint32(0)) // CIE sentinel for .eh_frame
	cieBody.WriteByte(1)                  // version
	cieBody.WriteString("zR")
	cieBody.WriteByte(0) // augstr terminator
	cieBody.WriteByte(1) // code_alignment_factor uleb128 = 1
	cieBody.WriteByte(0x78) // data_alignment_factor sleb128 = -8
	cieBody.WriteByte(16)   // return_address_register uleb128 = 16
	cieBody.WriteByte(1)    // aug data length = 1
	cieBody.WriteByte(0x00) // FdePointerEnc = DW_EH_PE_absptr
	cieBody.Write([]byte{0x00, 0x00}) // initial instructions: two DW_CFA_nop

	cieLengthOffset := sec.Len()
	binary.Write(&sec, le, uint32(cieBody.Len()))
	sec.Write(cieBody.Bytes())

	pcBegins := []uint64{0x1000, 0x2000, 0x3000}
	pcRanges := []uint64{0x50, 0x60, 0x70}
	for i := range pcBegins {
		fdeStart := sec.Len()
		var fdeBody bytes.Buffer
		binary.Write(&fdeBody, le, uint32(fdeStart-cieLengthOffset))
		binary.Write(&fdeBody, le, pcBegins[i])
		binary.Write(&fdeBody, le, pcRanges[i])
		fdeBody.WriteByte(0) // aug data length = 0

		binary.Write(&sec, le, uint32(fdeBody.Len()))
		sec.Write(fdeBody.Bytes())
	}

	binary.Write(&sec, le, uint32(0)) // terminator
	return sec.Bytes(), pcBegins, pcRanges
}

func TestScanAllEhFrameOneCIEThreeFDEs(t *testing.T) {
	data, pcBegins, pcRanges := buildEhFrameFixture(t)
	reg := sections.NewRegistry()
	reg.Set(sections.EhFrame, &sections.Section{Data: data})

	table, err := ScanAll(reg, binary.LittleEndian, 8, PointerContext{})
	require.NoError(t, err)
	require.Len(t, table.CIEs, 1)
	require.Equal(t, "zR", table.CIEs[0].AugStr)
	require.Equal(t, int64(-8), table.CIEs[0].DataAlignmentFactor)
	require.Equal(t, uint64(16), table.CIEs[0].ReturnAddressRegister)

	require.Len(t, table.FDEs, 3)
	for i, fde := range table.FDEs {
		require.Equal(t, pcBegins[i], fde.PcBegin)
		require.Equal(t, pcRanges[i], fde.PcRange)
		require.Same(t, table.CIEs[0], fde.CIE)
	}

	fde, err := table.FindFDE(0x2010)
	require.NoError(t, err)
	require.Equal(t, uint64(0x2000), fde.PcBegin)

	_, err = table.FindFDE(0x5000)
	require.Error(t, err)
}

// buildDebugFrameFixture64 assembles a 64-bit-format .debug_frame section
// with one version-4 CIE (id == ^uint64(0), the 64-bit CIE sentinel) and
// one FDE against it.
func buildDebugFrameFixture64(t *testing.T) []byte {
	t.Helper()
	le := binary.LittleEndian
	var sec bytes.Buffer

	var cieBody bytes.Buffer
	binary.Write(&cieBody, le, ^uint64(0)) // 64-bit .debug_frame CIE sentinel
	cieBody.WriteByte(4)                   // version
	cieBody.WriteByte(0)                   // empty augmentation string
	cieBody.WriteByte(8)                   // address_size
	cieBody.WriteByte(0)                   // segment_selector_size
	cieBody.WriteByte(1)                   // code_alignment_factor uleb128 = 1
	cieBody.WriteByte(0x78)                // data_alignment_factor sleb128 = -8
	cieBody.WriteByte(16)                  // return_address_register uleb128 = 16
	cieBody.Write([]byte{0x00, 0x00})      // initial instructions

	cieLengthOffset := sec.Len()
	sec.Write([]byte{0xff, 0xff, 0xff, 0xff}) // 64-bit format marker
	binary.Write(&sec, le, uint64(cieBody.Len()))
	sec.Write(cieBody.Bytes())

	var fdeBody bytes.Buffer
	binary.Write(&fdeBody, le, uint64(cieLengthOffset)) // absolute CIE offset
	binary.Write(&fdeBody, le, uint64(0x5000))          // pc_begin
	binary.Write(&fdeBody, le, uint64(0x80))            // pc_range

	sec.Write([]byte{0xff, 0xff, 0xff, 0xff})
	binary.Write(&sec, le, uint64(fdeBody.Len()))
	sec.Write(fdeBody.Bytes())

	binary.Write(&sec, le, uint32(0)) // terminator
	return sec.Bytes()
}

func TestScanAllDebugFrame64BitCIESentinel(t *testing.T) {
	data := buildDebugFrameFixture64(t)
	reg := sections.NewRegistry()
	reg.Set(sections.DebugFrame, &sections.Section{Data: data})

	table, err := ScanAll(reg, binary.LittleEndian, 8, PointerContext{})
	require.NoError(t, err)
	require.Len(t, table.CIEs, 1)
	require.Equal(t, uint8(4), table.CIEs[0].Version)
	require.Equal(t, 8, table.CIEs[0].AddressSize)

	require.Len(t, table.FDEs, 1)
	require.Equal(t, uint64(0x5000), table.FDEs[0].PcBegin)
	require.Equal(t, uint64(0x80), table.FDEs[0].PcRange)

	fde, err := table.FindFDE(0x5010)
	require.NoError(t, err)
	require.Equal(t, uint64(0x5000), fde.PcBegin)
}

// TestEhFrameHdrFindFDEExactMatch builds a synthetic .eh_frame_hdr over
// buildEhFrameFixture's one-CIE/three-FDE .eh_frame and checks that
// FindFDE resolves each FDE's exact pc_begin (the binary search's
// exact-match shortcut), a pc strictly inside the middle FDE's range,
// and rejects a pc below the first entry.
func TestEhFrameHdrFindFDEExactMatch(t *testing.T) {
	data, pcBegins, pcRanges := buildEhFrameFixture(t)
	reg := sections.NewRegistry()
	reg.Set(sections.EhFrame, &sections.Section{Data: data})

	var fdeOffsets []int
	cur := cursor.New(data, binary.LittleEndian)
	for cur.Pos() < len(data) {
		header, err := ReadEntryHeader(cur, SectionEhFrame)
		require.NoError(t, err)
		if header.EntryKind == EntryTerminator {
			break
		}
		if header.EntryKind == EntryFDE {
			fdeOffsets = append(fdeOffsets, header.LengthOffset)
		}
		require.NoError(t, cur.SeekTo(header.EntryEnd))
	}
	require.Len(t, fdeOffsets, 3)

	le := binary.LittleEndian
	var hdrBuf bytes.Buffer
	hdrBuf.WriteByte(1)                        // version
	hdrBuf.WriteByte(byte(dwconst.EhPeUdata8)) // eh_frame_ptr encoding
	hdrBuf.WriteByte(byte(dwconst.EhPeUdata8)) // fde_count encoding
	hdrBuf.WriteByte(byte(dwconst.EhPeUdata8)) // table encoding
	binary.Write(&hdrBuf, le, uint64(0))       // eh_frame_ptr
	binary.Write(&hdrBuf, le, uint64(len(pcBegins)))
	for i := range pcBegins {
		binary.Write(&hdrBuf, le, pcBegins[i])
		binary.Write(&hdrBuf, le, uint64(fdeOffsets[i]))
	}
	reg.Set(sections.EhFrameHdr, &sections.Section{Data: hdrBuf.Bytes()})

	hdr, err := ParseEhFrameHdr(reg, binary.LittleEndian, 8, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), hdr.FdeCount)

	for i, pc := range pcBegins {
		fde, err := hdr.FindFDE(reg, binary.LittleEndian, 8, 0, pc)
		require.NoError(t, err)
		require.Equal(t, pcBegins[i], fde.PcBegin)
		require.Equal(t, pcRanges[i], fde.PcRange)
	}

	fde, err := hdr.FindFDE(reg, binary.LittleEndian, 8, 0, pcBegins[1]+0x10)
	require.NoError(t, err)
	require.Equal(t, pcBegins[1], fde.PcBegin)

	_, err = hdr.FindFDE(reg, binary.LittleEndian, 8, 0, pcBegins[0]-1)
	require.Error(t, err)
}

func TestReadEntryHeaderTerminator(t *testing.T) {
	cur := cursor.New([]byte{0, 0, 0, 0}, binary.LittleEndian)
	h, err := ReadEntryHeader(cur, SectionEhFrame)
	require.NoError(t, err)
	require.Equal(t, EntryTerminator, h.EntryKind)
}
