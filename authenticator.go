// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Phase is the position of a session in its exchange. Phases only move
// forward: Initialized, then ExchangeInProgress, then exactly one of
// Completed or Failed.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhaseExchangeInProgress
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "Initialized"
	case PhaseExchangeInProgress:
		return "ExchangeInProgress"
	case PhaseCompleted:
		return "Completed"
	case PhaseFailed:
		return "Failed"
	}

	return "Unknown"
}

// Authenticator drives one party's side of a challenge/response exchange.
//
// The caller repeatedly invokes Step, passing the peer's last token (nil for
// a client's first call), and relays the returned token over the outer
// protocol. Once Step reports StatusCompleted on both sides, Wrap and
// Unwrap protect application messages at the negotiated level.
//
// An Authenticator serializes its own calls internally, so concurrent use
// is memory-safe; the exchange itself is still strictly sequential
// (call, relay, await the peer, call again), so concurrent Step calls make
// no protocol sense and the resulting interleaving is unspecified.
//
// Close must be called on every Authenticator, on success, failure and
// abandonment alike, to release the engine's security context.
type Authenticator struct {
	mu sync.Mutex

	role     Role
	pkg      string
	required ProtectionLevel
	target   string
	cred     Credential
	binding  *ChannelBinding
	engine   Engine

	phase      Phase
	failure    StatusCode
	ctx        SecContext
	released   bool
	closed     bool
	negotiated ProtectionLevel
	peerName   string
}

// Option configures an Authenticator at creation time. No options beyond
// these are recognized.
type Option func(a *Authenticator)

// WithCredential supplies explicit identity material instead of the
// engine's default identity. The credential is owned by the session for
// its lifetime and is never serialized or logged.
func WithCredential(cred Credential) Option {
	return func(a *Authenticator) {
		a.cred = cred
	}
}

// WithRequiredProtectionLevel sets the minimum guarantee the session must
// achieve before it is usable for message protection. The session fails
// with StatusQopNotSupported if the engine negotiates less. The default
// is ProtectionLevelNone.
func WithRequiredProtectionLevel(level ProtectionLevel) Option {
	return func(a *Authenticator) {
		a.required = level
	}
}

// WithChannelBinding binds the exchange to an outer secure channel.
func WithChannelBinding(cb *ChannelBinding) Option {
	return func(a *Authenticator) {
		a.binding = cb
	}
}

// WithEngine injects a specific engine instance, bypassing the registry
// lookup of the package name. This is how configured engines (for example
// a shared-key engine with a populated keytab) and test fakes are wired in.
func WithEngine(e Engine) Option {
	return func(a *Authenticator) {
		a.engine = e
	}
}

// NewClientAuthenticator creates a session that initiates an exchange.
// pkg is the mechanism-family hint used to look up a registered engine
// (unless WithEngine overrides it) and is passed on to the engine, which
// may resolve it to a different concrete mechanism. targetName identifies
// the service being authenticated to, in a mechanism-dependent format such
// as "HTTP/host".
func NewClientAuthenticator(pkg, targetName string, opts ...Option) (*Authenticator, error) {
	a := &Authenticator{
		role:   RoleClient,
		pkg:    pkg,
		target: targetName,
	}
	return a.init(opts)
}

// NewServerAuthenticator creates a session that accepts an exchange
// initiated by a client. The first Step call must carry the client's first
// token; whether the server waits for the client to speak first is an
// outer-protocol concern.
func NewServerAuthenticator(pkg string, opts ...Option) (*Authenticator, error) {
	a := &Authenticator{
		role: RoleServer,
		pkg:  pkg,
	}
	return a.init(opts)
}

func (a *Authenticator) init(opts []Option) (*Authenticator, error) {
	for _, opt := range opts {
		opt(a)
	}

	if a.engine == nil {
		e, err := NewEngine(a.pkg)
		if err != nil {
			return nil, fmt.Errorf("package %q: %w", a.pkg, err)
		}
		a.engine = e
	}

	return a, nil
}

// Step performs one exchange call: it consumes the peer's most recent
// token and produces exactly one outgoing token for the caller to relay.
//
// incoming is nil for a client's first call; an empty token on a later
// call is legal and not an error by itself. The returned token may be
// empty even on StatusCompleted, but when a completing engine does produce
// one it must still be transmitted: some mechanisms require a final
// acknowledgment message.
//
// Step never succeeds after the session reaches a terminal phase: it fails
// fast with StatusInvalidOperation without touching the engine.
func (a *Authenticator) Step(incoming []byte) ([]byte, StatusCode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.phase == PhaseCompleted || a.phase == PhaseFailed {
		return nil, StatusInvalidOperation
	}

	// The security context is established lazily on the first call.
	if a.ctx == nil {
		ctx, err := a.engine.NewContext(ContextConfig{
			Role:           a.role,
			Package:        a.pkg,
			Credential:     a.cred,
			TargetName:     a.target,
			RequiredLevel:  a.required,
			ChannelBinding: a.binding,
		})
		if err != nil {
			return nil, a.fail(statusFromError(err))
		}
		a.ctx = ctx
	}

	outgoing, done, err := a.ctx.Step(incoming)
	if err != nil {
		return nil, a.fail(statusFromError(err))
	}

	if !done {
		a.phase = PhaseExchangeInProgress
		return outgoing, StatusContinueNeeded
	}

	// The engine's reported level is authoritative; the session only
	// gates it against the configured requirement.
	negotiated := a.ctx.NegotiatedLevel()
	if !negotiated.Satisfies(a.required) {
		return nil, a.fail(StatusQopNotSupported)
	}

	a.phase = PhaseCompleted
	a.negotiated = negotiated
	a.peerName = a.ctx.PeerName()
	return outgoing, StatusCompleted
}

// StepString is Step with the tokens in their base64 text form, for outer
// protocols that relay tokens as text (HTTP Negotiate, SMTP AUTH). A
// malformed incoming token fails the session with StatusInvalidToken.
func (a *Authenticator) StepString(incoming string) (string, StatusCode) {
	var raw []byte
	if incoming != "" {
		var err error
		raw, err = DecodeToken(incoming)
		if err != nil {
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.closed || a.phase == PhaseCompleted || a.phase == PhaseFailed {
				return "", StatusInvalidOperation
			}
			return "", a.fail(StatusInvalidToken)
		}
	}

	outgoing, code := a.Step(raw)
	return EncodeToken(outgoing), code
}

// Abort maps an out-of-band rejection from the outer protocol onto the
// session. The session itself cannot detect a rejection that arrives as an
// outer-protocol status code (an SMTP 5xx, say), so the protocol layer
// calls Abort with the most specific failure it can determine; a
// non-failure code is recorded as StatusGenericFailure. Aborting a session
// that already reached a terminal phase is a no-op.
func (a *Authenticator) Abort(code StatusCode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase == PhaseCompleted || a.phase == PhaseFailed {
		return
	}
	if !code.IsError() {
		code = StatusGenericFailure
	}
	a.fail(code)
}

// fail moves the session to its terminal failure phase and releases the
// engine context: nothing can use it after a failure, and releasing here
// keeps the release-exactly-once guarantee independent of Close being
// called promptly. Returns code for convenience. Caller holds mu.
func (a *Authenticator) fail(code StatusCode) StatusCode {
	a.phase = PhaseFailed
	a.failure = code
	a.releaseLocked()
	return code
}

// releaseLocked releases the security context exactly once. Errors from a
// release triggered by a failure path are dropped: the failure code is the
// interesting outcome there, and Close still reports release errors on the
// success path. Caller holds mu.
func (a *Authenticator) releaseLocked() error {
	if a.ctx == nil || a.released {
		return nil
	}
	a.released = true
	return a.ctx.Release()
}

// Close releases the session's security context and credential. It is
// idempotent and must be called on every exit path, typically with defer.
// After Close, all operations fail with StatusInvalidOperation.
func (a *Authenticator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var result *multierror.Error
	if err := a.releaseLocked(); err != nil {
		result = multierror.Append(result, fmt.Errorf("release security context: %w", err))
	}

	return result.ErrorOrNil()
}

// Role returns the side of the exchange this session drives.
func (a *Authenticator) Role() Role {
	return a.role
}

// Phase returns the session's current state machine position.
func (a *Authenticator) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// IsComplete reports whether the exchange finished successfully.
func (a *Authenticator) IsComplete() bool {
	return a.Phase() == PhaseCompleted
}

// Failure returns the failure reason once the session is in PhaseFailed,
// and StatusContinueNeeded otherwise.
func (a *Authenticator) Failure() StatusCode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseFailed {
		return StatusContinueNeeded
	}
	return a.failure
}

// NegotiatedLevel returns the protection level actually established. It is
// only meaningful once the session reaches PhaseCompleted.
func (a *Authenticator) NegotiatedLevel() ProtectionLevel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.negotiated
}

// PeerName returns the authenticated name of the peer, if the mechanism
// established one. Empty until the session completes.
func (a *Authenticator) PeerName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peerName
}
