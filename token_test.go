// SPDX-License-Identifier: Apache-2.0
package negotiate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		{0xff, 0xfe, 0xfd},
		[]byte("NTLMSSP\x00"),
		make([]byte, 1024),
	}

	for _, in := range inputs {
		text := EncodeToken(in)
		out, err := DecodeToken(text)
		require.NoError(t, err)
		assert.Equal(t, len(in), len(out))
		assert.ElementsMatch(t, in, out)
	}
}

func TestEncodeEmptyToken(t *testing.T) {
	assert.Equal(t, "", EncodeToken(nil))
	assert.Equal(t, "", EncodeToken([]byte{}))

	out, err := DecodeToken("")
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeMalformedToken(t *testing.T) {
	bad := []string{
		"not-valid-base64!!",
		"QUJD=",   // bad padding
		"####",    // wrong alphabet
		"QUJDRA=", // truncated padding
	}

	for _, text := range bad {
		_, err := DecodeToken(text)
		assert.ErrorIs(t, err, ErrInvalidToken, "input %q", text)
	}
}
