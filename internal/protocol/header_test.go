package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Offset: 8144,
		Index:  1,
		Total:  2,
	}
	for i := range h.Hash {
		h.Hash[i] = byte(i)
	}

	buf := h.Encode()
	require.Len(t, buf, HeaderSize)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecodeHeaderRejectsWrongLength(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrMalformedHeader)

	_, err = DecodeHeader(make([]byte, HeaderSize+1))
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestHeaderHashHex(t *testing.T) {
	var h Header
	h.Hash[0] = 0xde
	h.Hash[1] = 0xad
	require.Equal(t, "dead000000000000000000000000000000000000", h.HashHex())
}
