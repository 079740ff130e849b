// SPDX-License-Identifier: Apache-2.0
package sharedkey

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	negotiate "github.com/golang-auth/go-negotiate"
)

func TestInitMessageRoundTrip(t *testing.T) {
	in := initMessage{
		Level:     negotiate.ProtectionLevelEncryptAndSign,
		Initiator: "alice",
		Target:    "host/files.example.com",
	}
	copy(in.Nonce[:], "nonce-nonce-nonce-nonce!")

	var out initMessage
	require.NoError(t, out.unmarshal(in.marshal()))
	assert.Equal(t, in, out)
}

func TestChallengeMessageRoundTrip(t *testing.T) {
	in := challengeMessage{
		Level:     negotiate.ProtectionLevelSign,
		ContextID: uuid.New(),
	}
	copy(in.Nonce[:], "the-acceptor-nonce-here!")
	copy(in.Proof[:], "0123456789abcdef0123456789abcdef")

	var out challengeMessage
	require.NoError(t, out.unmarshal(in.marshal()))
	assert.Equal(t, in, out)
}

func TestResponseMessageRoundTrip(t *testing.T) {
	in := responseMessage{ContextID: uuid.New()}
	copy(in.Proof[:], "0123456789abcdef0123456789abcdef")

	var out responseMessage
	require.NoError(t, out.unmarshal(in.marshal()))
	assert.Equal(t, in, out)
}

func TestUnmarshalRejectsWrongType(t *testing.T) {
	in := initMessage{Initiator: "alice", Target: "svc"}

	var out challengeMessage
	err := out.unmarshal(in.marshal())
	assert.ErrorIs(t, err, negotiate.ErrInvalidToken)
}

func TestUnmarshalRejectsTruncation(t *testing.T) {
	in := initMessage{Initiator: "alice", Target: "host/files.example.com"}
	token := in.marshal()

	var out initMessage
	for _, n := range []int{0, 1, 4, 5, 10, len(token) - 1} {
		err := out.unmarshal(token[:n])
		assert.ErrorIs(t, err, negotiate.ErrInvalidToken, "length %d", n)
	}

	// trailing garbage is rejected too
	err := out.unmarshal(append(token, 0x00)) //nolint:gocritic
	assert.ErrorIs(t, err, negotiate.ErrInvalidToken)
}
