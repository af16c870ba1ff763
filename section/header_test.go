package section

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andewhash/apx-repack/errs"
)

func TestHeaderBytes(t *testing.T) {
	start := time.UnixMilli(1700000000000)
	h := NewHeader(start, 3600)

	b := h.Bytes()
	require.Len(t, b, HeaderSize)

	require.Equal(t, []byte("APXTLM"), b[0:6])
	require.Equal(t, make([]byte, 10), b[6:16], "padding after magic")
	require.Equal(t, uint16(FormatVersion), binary.LittleEndian.Uint16(b[16:18]))
	require.Equal(t, uint16(HeaderSize), binary.LittleEndian.Uint16(b[18:20]))
	require.Equal(t, make([]byte, 12), b[20:32], "reserved padding")
	require.Equal(t, uint64(1700000000000), binary.LittleEndian.Uint64(b[32:40]))
	require.Equal(t, uint32(3600), binary.LittleEndian.Uint32(b[40:44]))
}

func TestHeaderNegativeUTCOffset(t *testing.T) {
	h := NewHeader(time.UnixMilli(1700000000000), -7200)
	b := h.Bytes()

	require.Equal(t, int32(-7200), int32(binary.LittleEndian.Uint32(b[40:44])))
}

func TestHeaderParse(t *testing.T) {
	start := time.UnixMilli(1712345678901)
	src := NewHeader(start, -3600)

	var parsed Header
	require.NoError(t, parsed.Parse(src.Bytes()))
	require.Equal(t, *src, parsed)
	require.Equal(t, start, parsed.StartTimeAsTime())

	t.Run("WrongSize", func(t *testing.T) {
		var h Header
		require.ErrorIs(t, h.Parse(make([]byte, 43)), errs.ErrInvalidHeaderSize)
	})

	t.Run("WrongMagic", func(t *testing.T) {
		b := src.Bytes()
		b[0] = 'X'
		var h Header
		require.ErrorIs(t, h.Parse(b), errs.ErrInvalidMagic)
	})
}
