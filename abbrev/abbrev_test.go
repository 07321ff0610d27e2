package abbrev

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coredump-run/dwarfsym/dwconst"
)

// uleb encodes small non-negative test constants as a single ULEB128 byte;
// every value used in this file fits in 7 bits.
func uleb(v byte) byte { return v }

func TestDecoderParsesSingleAbbreviation(t *testing.T) {
	data := []byte{
		uleb(1), uleb(byte(dwconst.TagCompileUnit)), 1, // code 1, DW_TAG_compile_unit, has_children
		uleb(byte(dwconst.AttrName)), uleb(byte(dwconst.FormString)),
		0, 0, // attr list terminator
		0, // table terminator
	}
	d := NewDecoder(data, binary.LittleEndian)
	table, err := d.Table(0)
	require.NoError(t, err)

	a, ok := table.Lookup(1)
	require.True(t, ok)
	require.Equal(t, dwconst.TagCompileUnit, a.Tag)
	require.True(t, a.HasChildren)
	require.Len(t, a.Attrs, 1)
	require.Equal(t, dwconst.AttrName, a.Attrs[0].Attr)
	require.Equal(t, dwconst.FormString, a.Attrs[0].Form)
}

func TestDecoderCachesByOffset(t *testing.T) {
	data := []byte{uleb(1), uleb(byte(dwconst.TagBaseType)), 0, 0, 0, 0}
	d := NewDecoder(data, binary.LittleEndian)
	t1, err := d.Table(0)
	require.NoError(t, err)
	t2, err := d.Table(0)
	require.NoError(t, err)
	require.Same(t, t1, t2)
}

func TestDecoderRejectsDuplicateCode(t *testing.T) {
	data := []byte{
		uleb(1), uleb(byte(dwconst.TagBaseType)), 0, 0, 0,
		uleb(1), uleb(byte(dwconst.TagConstType)), 0, 0, 0,
		0,
	}
	d := NewDecoder(data, binary.LittleEndian)
	_, err := d.Table(0)
	require.Error(t, err)
}

func TestDecoderImplicitConst(t *testing.T) {
	data := []byte{
		uleb(1), uleb(byte(dwconst.TagMember)), 0,
		uleb(byte(dwconst.AttrConstValue)), uleb(byte(dwconst.FormImplicitConst)), 0x05,
		0, 0,
		0,
	}
	d := NewDecoder(data, binary.LittleEndian)
	table, err := d.Table(0)
	require.NoError(t, err)
	a, ok := table.Lookup(1)
	require.True(t, ok)
	require.EqualValues(t, 5, a.Attrs[0].ImplicitConst)
}

func TestDecoderRejectsBadHasChildren(t *testing.T) {
	data := []byte{uleb(1), uleb(byte(dwconst.TagBaseType)), 0x05, 0, 0, 0}
	d := NewDecoder(data, binary.LittleEndian)
	_, err := d.Table(0)
	require.Error(t, err)
}
