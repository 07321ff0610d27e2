package containersec

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecompressMaybePassesThroughUncompressed(t *testing.T) {
	in := []byte("not compressed")
	out, err := decompressMaybe(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecompressMaybeInflatesZlibPrefixedData(t *testing.T) {
	payload := []byte("hello debug section")

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var in bytes.Buffer
	in.WriteString("ZLIB")
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	in.Write(lenBuf[:])
	in.Write(compressed.Bytes())

	out, err := decompressMaybe(in.Bytes())
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestZdebugName(t *testing.T) {
	require.Equal(t, ".zdebug_info", zdebugName(".debug_info"))
	require.Equal(t, "__zdebug_line", zdebugName("__debug_line"))
}
