// SPDX-License-Identifier: Apache-2.0

package negotiate

import "net"

// Role selects which side of the exchange a session drives. It is fixed
// when the session is created.
type Role int

const (
	// RoleClient initiates the exchange and speaks first.
	RoleClient Role = iota
	// RoleServer accepts an exchange started by a client.
	RoleServer
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// ChannelBinding carries data binding the security context to an outer
// secure channel, such as the tls-server-end-point binding computed by the
// go-channelbinding package. Both parties must present the same binding
// data for the exchange to succeed.
type ChannelBinding struct {
	InitiatorAddr net.Addr
	AcceptorAddr  net.Addr
	Data          []byte
}

// ContextConfig carries the parameters fixed at security context creation
// time. It is assembled by the Authenticator from its options and passed to
// the engine exactly once, on the first Step call.
type ContextConfig struct {
	// Role of the local party.
	Role Role

	// Package is the mechanism-family hint the caller asked for. It is
	// advisory: an umbrella engine may resolve it to a different concrete
	// mechanism.
	Package string

	// Credential resolved for the local party.
	Credential Credential

	// TargetName identifies the service being authenticated to. Only set
	// for client contexts; its format is mechanism dependent
	// (e.g. "HTTP/host").
	TargetName string

	// RequiredLevel is the minimum protection the session must achieve.
	// Engines should negotiate at least this level when they can; the
	// session fails with StatusQopNotSupported when the established
	// context falls short.
	RequiredLevel ProtectionLevel

	// ChannelBinding, if non-nil, binds the context to an outer channel.
	ChannelBinding *ChannelBinding
}

// SecContext is one party's live security context inside a negotiation
// engine. It is created by Engine.NewContext and owned exclusively by the
// Authenticator, which guarantees that Release is called exactly once.
//
// A SecContext performs no network I/O: Step may block on local
// cryptographic or system calls only.
type SecContext interface {
	// Step consumes the peer's most recent token and produces the next
	// output token. A nil incoming token is passed on a client's first
	// call; an empty token on later calls is legal and mechanism
	// dependent. done reports that the context is fully established --
	// the returned token, if any, must still be relayed to the peer.
	//
	// On failure Step returns an error wrapping one of the package
	// sentinel errors (ErrInvalidToken, ErrInvalidCredentials, ...).
	Step(incoming []byte) (outgoing []byte, done bool, err error)

	// NegotiatedLevel reports the protection level actually established.
	// Its value is meaningful only once Step has reported done.
	NegotiatedLevel() ProtectionLevel

	// PeerName returns the authenticated name of the peer, if the
	// mechanism established one.
	PeerName() string

	// SequencingRequired reports whether Unwrap must be called in the
	// exact order the peer produced the messages. The layer does not
	// buffer or reorder; an outer transport must guarantee ordering when
	// this is true.
	SequencingRequired() bool

	// Wrap signs (and encrypts, when the negotiated level is
	// EncryptAndSign) an application payload.
	Wrap(plaintext []byte) ([]byte, error)

	// Unwrap verifies and, if applicable, decrypts a protected message.
	// It returns ErrMessageModified when the integrity check fails and
	// ErrMessageExpired when the message falls outside the mechanism's
	// replay or ordering window.
	Unwrap(protected []byte) ([]byte, error)

	// Release frees the native or in-process resources held by the
	// context. It is called exactly once by the owning Authenticator.
	Release() error
}

// Engine is an opaque negotiation engine: the GSSAPI/SSPI-equivalent that
// performs the actual token generation. Engines are injected into sessions
// either by name through the registry or directly with WithEngine, which
// allows the state machine to be exercised against a fake engine in tests.
type Engine interface {
	// Name returns the mechanism-family name the engine was registered
	// under.
	Name() string

	// NewContext creates a security context for one exchange. Creation
	// resolves the credential; an engine that cannot serve the requested
	// role or identity fails here rather than on the first Step.
	NewContext(cfg ContextConfig) (SecContext, error)
}
