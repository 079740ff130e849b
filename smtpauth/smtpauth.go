// SPDX-License-Identifier: Apache-2.0

/*
Package smtpauth adapts a negotiate client session to the [net/smtp.Auth]
interface, relaying mechanism tokens through the SMTP AUTH
challenge/response dialogue (RFC 4954).

The smtp package handles the base64 framing of the 334 continuation lines
itself, so tokens cross this boundary in their raw binary form. Protocol
level rejections (a 535 reply, say) surface as errors from smtp.Auth and
end the dialogue; the session is aborted so that it cannot be reused.
*/
package smtpauth

import (
	"fmt"
	"net/smtp"

	negotiate "github.com/golang-auth/go-negotiate"
)

// ClientAuth drives a client negotiate session through smtp.Auth.
// The session stays owned by the caller, who must Close it when the SMTP
// dialogue is over, whatever its outcome.
type ClientAuth struct {
	auth             *negotiate.Authenticator
	proto            string
	allowUnencrypted bool
}

var _ smtp.Auth = (*ClientAuth)(nil)

// Option configures a ClientAuth.
type Option func(c *ClientAuth)

// AllowUnencrypted permits the dialogue to start on a connection without
// TLS. The default refusal mirrors [smtp.PlainAuth]: mechanism tokens never
// carry the password in the clear, but an NTLM exchange over plaintext is
// still open to offline cracking and relay, so the downgrade is opt-in.
func AllowUnencrypted() Option {
	return func(c *ClientAuth) {
		c.allowUnencrypted = true
	}
}

// New wraps a client session for SMTP AUTH. proto is the SASL mechanism
// name announced to the server, conventionally "GSSAPI" for Negotiate
// exchanges and "NTLM" for raw NTLM.
func New(auth *negotiate.Authenticator, proto string, opts ...Option) *ClientAuth {
	c := &ClientAuth{auth: auth, proto: proto}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start implements [smtp.Auth]: it produces the mechanism name and the
// client's initial token. Unless AllowUnencrypted was set, a server that
// has not negotiated TLS is refused before any token is released.
func (c *ClientAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !c.allowUnencrypted {
		return "", nil, fmt.Errorf("unencrypted connection to %s: %w", server.Name, negotiate.ErrUnsupported)
	}

	token, code := c.auth.Step(nil)
	if code.IsError() {
		return "", nil, fmt.Errorf("smtp auth start: %w", code.Err())
	}
	return c.proto, token, nil
}

// Next implements [smtp.Auth]: it answers one server challenge. A call
// after the session reached a terminal phase means the server keeps
// challenging a finished exchange, which ends the dialogue with an error.
func (c *ClientAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}

	token, code := c.auth.Step(fromServer)
	if code.IsError() {
		return nil, fmt.Errorf("smtp auth: %w", code.Err())
	}
	return token, nil
}

// Abort maps an SMTP level rejection onto the session, so that a later
// attempt cannot resume it. Callers invoke it when the server answers the
// dialogue with a 5xx reply.
func (c *ClientAuth) Abort() {
	c.auth.Abort(negotiate.StatusGenericFailure)
}
