// SPDX-License-Identifier: Apache-2.0

/*
Package ntlm implements an initiator-only negotiation engine for the NTLM
mechanism, built on the message codecs of github.com/Azure/go-ntlmssp.

The engine drives the classic two-leg client exchange: a NEGOTIATE message,
then an AUTHENTICATE message computed from the server's CHALLENGE. It
cannot accept contexts (that requires the server's account database) and it
negotiates no message protection, so sessions requiring a protection level
above None fail with StatusQopNotSupported once the exchange completes.

The engine registers itself under the name "ntlm".
*/
package ntlm

import (
	"fmt"

	"github.com/Azure/go-ntlmssp"

	negotiate "github.com/golang-auth/go-negotiate"
)

// EngineName is the name the engine registers under.
const EngineName = "ntlm"

func init() {
	negotiate.RegisterEngine(EngineName, func() (negotiate.Engine, error) {
		return New(), nil
	})
}

// Engine creates initiator NTLM contexts.
type Engine struct {
	workstation string
}

// Option configures an Engine.
type Option func(e *Engine)

// WithWorkstation sets the workstation name reported in the NEGOTIATE
// message. Empty, the default, is accepted by all known servers.
func WithWorkstation(name string) Option {
	return func(e *Engine) {
		e.workstation = name
	}
}

// New creates an NTLM engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements negotiate.Engine.
func (e *Engine) Name() string { return EngineName }

// NewContext implements negotiate.Engine. Only client contexts with an
// explicit username/password credential can be served: there is no system
// identity to fall back on outside SSPI.
func (e *Engine) NewContext(cfg negotiate.ContextConfig) (negotiate.SecContext, error) {
	if cfg.Role != negotiate.RoleClient {
		return nil, fmt.Errorf("ntlm acceptor contexts: %w", negotiate.ErrUnsupported)
	}
	if cfg.Credential.IsDefault() || cfg.Credential.Username == "" {
		return nil, fmt.Errorf("ntlm requires an explicit credential: %w", negotiate.ErrUnknownCredentials)
	}

	return &context{
		engine: e,
		cred:   cfg.Credential,
		target: cfg.TargetName,
	}, nil
}

// context is a client-side NTLM exchange.
type context struct {
	engine *Engine
	cred   negotiate.Credential
	target string

	step        int
	established bool
	released    bool
}

// Step implements negotiate.SecContext.
func (c *context) Step(incoming []byte) ([]byte, bool, error) {
	if c.released || c.established {
		return nil, false, negotiate.ErrInvalidOperation
	}

	switch c.step {
	case 0:
		if len(incoming) != 0 {
			return nil, false, fmt.Errorf("unexpected token before NEGOTIATE: %w", negotiate.ErrInvalidToken)
		}
		out, err := ntlmssp.NewNegotiateMessage(c.cred.Domain, c.engine.workstation)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", negotiate.ErrGenericFailure, err)
		}
		c.step = 1
		return out, false, nil

	case 1:
		if len(incoming) == 0 {
			return nil, false, fmt.Errorf("empty CHALLENGE: %w", negotiate.ErrInvalidToken)
		}
		// the domain travels in the NEGOTIATE message when we know it up
		// front; otherwise the server's CHALLENGE names it
		domainNeeded := c.cred.Domain == ""
		out, err := ntlmssp.ProcessChallenge(incoming, c.cred.Username, c.cred.Password, domainNeeded)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", negotiate.ErrInvalidToken, err)
		}
		c.step = 2
		c.established = true

		// the AUTHENTICATE message is the final leg; the server does not
		// answer with a token of its own
		return out, true, nil
	}

	return nil, false, negotiate.ErrInvalidOperation
}

// NegotiatedLevel implements negotiate.SecContext. The codec-level NTLM
// exchange establishes no session key usable here, so no message
// protection is offered.
func (c *context) NegotiatedLevel() negotiate.ProtectionLevel {
	return negotiate.ProtectionLevelNone
}

// PeerName implements negotiate.SecContext. NTLM does not authenticate the
// server to the client; the target name is reported as configured.
func (c *context) PeerName() string {
	if !c.established {
		return ""
	}
	return c.target
}

// SequencingRequired implements negotiate.SecContext.
func (c *context) SequencingRequired() bool { return false }

// Wrap implements negotiate.SecContext.
func (c *context) Wrap([]byte) ([]byte, error) {
	return nil, negotiate.ErrNotSupported
}

// Unwrap implements negotiate.SecContext.
func (c *context) Unwrap([]byte) ([]byte, error) {
	return nil, negotiate.ErrNotSupported
}

// Release implements negotiate.SecContext.
func (c *context) Release() error {
	c.released = true
	c.cred = negotiate.Credential{}
	return nil
}
