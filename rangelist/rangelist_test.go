package rangelist

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coredump-run/dwarfsym/abbrev"
	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/internal/cursor"
	"github.com/coredump-run/dwarfsym/sections"
)

func TestIterateV4RangesWithBaseUpdate(t *testing.T) {
	le := binary.LittleEndian
	buf := make([]byte, 0)
	put64 := func(v uint64) {
		b := make([]byte, 8)
		le.PutUint64(b, v)
		buf = append(buf, b...)
	}
	put64(^uint64(0))
	put64(0x1000) // base address selection -> base=0x1000
	put64(0x10)
	put64(0x20) // range [0x1010, 0x1020)
	put64(0)
	put64(0) // terminator

	reg := sections.NewRegistry()
	reg.Set(sections.DebugRanges, &sections.Section{Data: buf})

	ctx := Context{Version: 4, Format: cursor.Format32, AddrSize: 8}
	ranges, err := Iterate(reg, le, ctx, abbrev.Value{Kind: abbrev.KindSecOffset, U64: 0})
	require.NoError(t, err)
	require.Equal(t, []Range{{Start: 0x1010, End: 0x1020}}, ranges)
}

func TestIterateV5OffsetPairAndEndOfList(t *testing.T) {
	le := binary.LittleEndian
	buf := []byte{
		byte(dwconst.RleOffsetPair), 0x10, 0x20,
		byte(dwconst.RleEndOfList),
	}
	reg := sections.NewRegistry()
	reg.Set(sections.DebugRnglists, &sections.Section{Data: buf})

	ctx := Context{Version: 5, Format: cursor.Format32, AddrSize: 8, LowPC: 0x1000}
	ranges, err := Iterate(reg, le, ctx, abbrev.Value{Kind: abbrev.KindSecOffset, U64: 0})
	require.NoError(t, err)
	require.Equal(t, []Range{{Start: 0x1010, End: 0x1020}}, ranges)
}

func TestIterateV5StartLength(t *testing.T) {
	le := binary.LittleEndian
	buf := []byte{
		byte(dwconst.RleStartLength), 0x20, 0, 0, 0, 0, 0, 0, 0, 0x10,
		byte(dwconst.RleEndOfList),
	}
	reg := sections.NewRegistry()
	reg.Set(sections.DebugRnglists, &sections.Section{Data: buf})

	ctx := Context{Version: 5, Format: cursor.Format32, AddrSize: 8}
	ranges, err := Iterate(reg, le, ctx, abbrev.Value{Kind: abbrev.KindSecOffset, U64: 0})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	require.Equal(t, uint64(0x20), ranges[0].Start)
	require.Equal(t, uint64(0x30), ranges[0].End)
}

func TestIterateUnsupportedFormKind(t *testing.T) {
	reg := sections.NewRegistry()
	_, err := Iterate(reg, binary.LittleEndian, Context{Version: 5}, abbrev.Value{Kind: abbrev.KindFlag})
	require.Error(t, err)
}
