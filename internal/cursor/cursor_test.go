package cursor

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadULEB128(t *testing.T) {
	c := New([]byte{0xE5, 0x8E, 0x26}, binary.LittleEndian)
	n, err := c.ReadULEB128()
	require.NoError(t, err)
	require.EqualValues(t, 624485, n)
	require.Equal(t, 3, c.Pos())
}

func TestReadSLEB128(t *testing.T) {
	c := New([]byte{0x9b, 0xf1, 0x59}, binary.LittleEndian)
	n, err := c.ReadSLEB128()
	require.NoError(t, err)
	require.EqualValues(t, -624485, n)
}

func TestReadCString(t *testing.T) {
	c := New([]byte{'h', 'i', 0x0, 0xFF, 0xCC}, binary.LittleEndian)
	s, err := c.ReadCString()
	require.NoError(t, err)
	require.Equal(t, "hi", s)
	require.Equal(t, 3, c.Pos())
}

func TestReadCStringUnterminated(t *testing.T) {
	c := New([]byte{'h', 'i'}, binary.LittleEndian)
	_, err := c.ReadCString()
	require.Error(t, err)
}

func TestReadInitialLength32(t *testing.T) {
	c := New([]byte{0x10, 0x00, 0x00, 0x00}, binary.LittleEndian)
	h, err := c.ReadInitialLength()
	require.NoError(t, err)
	require.Equal(t, Format32, h.Format)
	require.Equal(t, 4, h.HeaderLength)
	require.EqualValues(t, 0x10, h.UnitLength)
}

func TestReadInitialLength64(t *testing.T) {
	c := New([]byte{0xff, 0xff, 0xff, 0xff, 0x10, 0, 0, 0, 0, 0, 0, 0}, binary.LittleEndian)
	h, err := c.ReadInitialLength()
	require.NoError(t, err)
	require.Equal(t, Format64, h.Format)
	require.Equal(t, 12, h.HeaderLength)
	require.EqualValues(t, 0x10, h.UnitLength)
}

func TestReadInitialLengthReserved(t *testing.T) {
	c := New([]byte{0xf0, 0xff, 0xff, 0xff}, binary.LittleEndian)
	_, err := c.ReadInitialLength()
	require.Error(t, err)
}

func TestReadBytesUnderflow(t *testing.T) {
	c := New([]byte{1, 2}, binary.LittleEndian)
	_, err := c.ReadBytes(3)
	require.Error(t, err)
}

func TestCheckedReadRejectsInvalidMemory(t *testing.T) {
	c := NewChecked([]byte{1, 2, 3, 4}, binary.LittleEndian, 0x1000, func(addr uint64, n int) bool {
		return addr+uint64(n) <= 0x1002
	})
	_, err := c.ReadUint16()
	require.NoError(t, err)
	_, err = c.ReadUint16()
	require.Error(t, err)
}

func TestReadULEB128Overflow(t *testing.T) {
	c := New([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}, binary.LittleEndian)
	_, err := c.ReadULEB128As(8)
	require.Error(t, err)
}

func TestSeekForward(t *testing.T) {
	c := New([]byte{1, 2, 3, 4}, binary.LittleEndian)
	require.NoError(t, c.SeekForward(2))
	require.Equal(t, 2, c.Pos())
	b, err := c.ReadU8()
	require.NoError(t, err)
	require.EqualValues(t, 3, b)
}
