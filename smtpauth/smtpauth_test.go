// SPDX-License-Identifier: Apache-2.0
package smtpauth

import (
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	negotiate "github.com/golang-auth/go-negotiate"
	"github.com/golang-auth/go-negotiate/sharedkey"
)

var testKeytab = sharedkey.Keytab{
	"alice":                 []byte("alice-shared-secret-0123456789ab"),
	"smtp/mail.example.com": []byte("smtp-service-secret-0123456789ab"),
}

func newSessions(t *testing.T) (*negotiate.Authenticator, *negotiate.Authenticator) {
	t.Helper()
	e := sharedkey.New(testKeytab)

	client, err := negotiate.NewClientAuthenticator(sharedkey.EngineName, "smtp/mail.example.com",
		negotiate.WithEngine(e),
		negotiate.WithCredential(negotiate.Credential{Username: "alice"}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() }) //nolint:errcheck

	server, err := negotiate.NewServerAuthenticator(sharedkey.EngineName,
		negotiate.WithEngine(e),
		negotiate.WithCredential(negotiate.Credential{Username: "smtp/mail.example.com"}))
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() }) //nolint:errcheck

	return client, server
}

// TestAuthDialogue plays the server side of the SMTP AUTH dialogue by hand:
// every token from smtp.Auth is fed to a server session, and every server
// token comes back as a 334 challenge.
func TestAuthDialogue(t *testing.T) {
	client, server := newSessions(t)
	auth := New(client, "GSSAPI")

	proto, token, err := auth.Start(&smtp.ServerInfo{Name: "mail.example.com", TLS: true})
	require.NoError(t, err)
	assert.Equal(t, "GSSAPI", proto)
	require.NotEmpty(t, token)

	for rounds := 0; !server.IsComplete(); rounds++ {
		require.Less(t, rounds, 5, "dialogue did not terminate")

		challenge, code := server.Step(token)
		require.False(t, code.IsError(), "server failed: %v", code)

		if code == negotiate.StatusCompleted && len(challenge) == 0 {
			break
		}
		token, err = auth.Next(challenge, true)
		require.NoError(t, err)
	}

	assert.True(t, client.IsComplete())
	assert.True(t, server.IsComplete())
	assert.Equal(t, "alice", server.PeerName())
}

func TestNextAfterDone(t *testing.T) {
	client, server := newSessions(t)
	auth := New(client, "GSSAPI")

	_, token, err := auth.Start(&smtp.ServerInfo{TLS: true})
	require.NoError(t, err)
	challenge, code := server.Step(token)
	require.Equal(t, negotiate.StatusContinueNeeded, code)
	token, err = auth.Next(challenge, true)
	require.NoError(t, err)
	_, code = server.Step(token)
	require.Equal(t, negotiate.StatusCompleted, code)

	// the server keeps challenging a finished exchange
	_, err = auth.Next([]byte("one more"), true)
	assert.ErrorIs(t, err, negotiate.ErrInvalidOperation)
}

func TestStartRefusesPlaintext(t *testing.T) {
	client, _ := newSessions(t)
	auth := New(client, "GSSAPI")

	// no TLS, no opt-in: no token leaves the client
	_, token, err := auth.Start(&smtp.ServerInfo{Name: "mail.example.com"})
	assert.ErrorIs(t, err, negotiate.ErrUnsupported)
	assert.Nil(t, token)
	assert.Equal(t, negotiate.PhaseInitialized, client.Phase())

	// the explicit opt-in lets the dialogue begin
	optIn := New(client, "GSSAPI", AllowUnencrypted())
	_, token, err = optIn.Start(&smtp.ServerInfo{Name: "mail.example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestNextWithoutChallenge(t *testing.T) {
	client, _ := newSessions(t)
	auth := New(client, "GSSAPI")

	out, err := auth.Next(nil, false)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestAbort(t *testing.T) {
	client, _ := newSessions(t)
	auth := New(client, "GSSAPI")

	_, _, err := auth.Start(&smtp.ServerInfo{TLS: true})
	require.NoError(t, err)

	// server answered with a protocol-level rejection
	auth.Abort()
	assert.Equal(t, negotiate.PhaseFailed, client.Phase())

	_, err = auth.Next([]byte("challenge"), true)
	assert.ErrorIs(t, err, negotiate.ErrInvalidOperation)
}
