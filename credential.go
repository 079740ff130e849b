// SPDX-License-Identifier: Apache-2.0

package negotiate

// Credential identifies the local party to the negotiation engine. The
// zero value selects the default identity of the engine (for platform
// engines, the current process identity; for the shared-key engine, a
// configured default principal).
//
// A credential is resolved once, when the security context is created, and
// is owned by the session for its lifetime. Credentials are never
// serialized; the Password field is redacted from all string formatting.
type Credential struct {
	Username string
	Password string
	Domain   string
}

// IsDefault reports whether c is the zero credential, requesting the
// engine's default identity.
func (c Credential) IsDefault() bool {
	return c == Credential{}
}

// String renders the credential with the password redacted.
func (c Credential) String() string {
	if c.IsDefault() {
		return "<default credential>"
	}

	name := c.Username
	if c.Domain != "" {
		name = c.Domain + `\` + c.Username
	}
	if c.Password != "" {
		name += ":<redacted>"
	}
	return name
}

// GoString renders like String so that %#v cannot leak the password either.
func (c Credential) GoString() string {
	return c.String()
}
