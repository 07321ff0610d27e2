package abbrev

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coredump-run/dwarfsym/dwconst"
	"github.com/coredump-run/dwarfsym/internal/cursor"
)

func TestParseFormUdata(t *testing.T) {
	c := cursor.New([]byte{0xE5, 0x8E, 0x26}, binary.LittleEndian)
	v, err := ParseForm(c, dwconst.FormUdata, 8, cursor.Format32, 0)
	require.NoError(t, err)
	require.Equal(t, KindUdata, v.Kind)
	require.EqualValues(t, 624485, v.U64)
}

func TestParseFormStrp32vs64(t *testing.T) {
	c32 := cursor.New([]byte{0x10, 0, 0, 0}, binary.LittleEndian)
	v, err := ParseForm(c32, dwconst.FormStrp, 8, cursor.Format32, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0x10, v.U64)

	c64 := cursor.New([]byte{0x10, 0, 0, 0, 0, 0, 0, 0}, binary.LittleEndian)
	v, err = ParseForm(c64, dwconst.FormStrp, 8, cursor.Format64, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0x10, v.U64)
}

func TestParseFormFlagPresent(t *testing.T) {
	c := cursor.New(nil, binary.LittleEndian)
	v, err := ParseForm(c, dwconst.FormFlagPresent, 8, cursor.Format32, 0)
	require.NoError(t, err)
	require.True(t, v.Flag)
	require.Equal(t, 0, c.Pos())
}

func TestParseFormImplicitConst(t *testing.T) {
	c := cursor.New(nil, binary.LittleEndian)
	v, err := ParseForm(c, dwconst.FormImplicitConst, 8, cursor.Format32, -7)
	require.NoError(t, err)
	require.EqualValues(t, -7, v.I64)
}

func TestParseFormIndirect(t *testing.T) {
	data := []byte{byte(dwconst.FormUdata), 0x2a}
	c := cursor.New(data, binary.LittleEndian)
	v, err := ParseForm(c, dwconst.FormIndirect, 8, cursor.Format32, 0)
	require.NoError(t, err)
	require.Equal(t, KindUdata, v.Kind)
	require.EqualValues(t, 0x2a, v.U64)
}

func TestParseFormIndirectSelfLoop(t *testing.T) {
	data := make([]byte, 0)
	for i := 0; i < maxIndirectDepth+4; i++ {
		data = append(data, byte(dwconst.FormIndirect))
	}
	c := cursor.New(data, binary.LittleEndian)
	_, err := ParseForm(c, dwconst.FormIndirect, 8, cursor.Format32, 0)
	require.Error(t, err)
}

func TestParseFormBlock1(t *testing.T) {
	data := []byte{3, 'a', 'b', 'c'}
	c := cursor.New(data, binary.LittleEndian)
	v, err := ParseForm(c, dwconst.FormBlock1, 8, cursor.Format32, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), v.Bytes)
}

func TestParseFormAddrxVariants(t *testing.T) {
	c := cursor.New([]byte{0x07}, binary.LittleEndian)
	v, err := ParseForm(c, dwconst.FormAddrx1, 8, cursor.Format32, 0)
	require.NoError(t, err)
	require.Equal(t, KindAddrx, v.Kind)
	require.EqualValues(t, 7, v.U64)
}

func TestParseFormUnsupported(t *testing.T) {
	c := cursor.New(nil, binary.LittleEndian)
	_, err := ParseForm(c, dwconst.Form(0xff), 8, cursor.Format32, 0)
	require.Error(t, err)
}
