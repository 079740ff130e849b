// SPDX-License-Identifier: Apache-2.0

package negotiate

// Message protection: once the exchange has completed, the negotiated
// security context guards application payloads. Protection failures do not
// fail the session; each call reports its own status and the caller decides
// whether the transport is still usable.

// Wrap signs (and encrypts, when the negotiated level is EncryptAndSign)
// an application payload, producing a self-describing protected message.
//
// Wrap fails with StatusInvalidOperation unless the session is in
// PhaseCompleted, and with StatusNotSupported when the negotiated
// protection level is None: protection was never negotiated.
func (a *Authenticator) Wrap(plaintext []byte) ([]byte, StatusCode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.phase != PhaseCompleted {
		return nil, StatusInvalidOperation
	}
	if a.negotiated == ProtectionLevelNone {
		return nil, StatusNotSupported
	}

	protected, err := a.ctx.Wrap(plaintext)
	if err != nil {
		return nil, statusFromError(err)
	}
	return protected, StatusCompleted
}

// Unwrap verifies the integrity of a protected message and decrypts it if
// the negotiated level includes confidentiality.
//
// It fails with StatusMessageModified when the integrity check fails and
// StatusMessageExpired when the message falls outside the mechanism's
// replay or ordering window. When SequencingRequired reports true,
// messages must be unwrapped in the order the peer produced them; the
// session does not buffer or reorder.
func (a *Authenticator) Unwrap(protected []byte) ([]byte, StatusCode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.phase != PhaseCompleted {
		return nil, StatusInvalidOperation
	}
	if a.negotiated == ProtectionLevelNone {
		return nil, StatusNotSupported
	}

	plaintext, err := a.ctx.Unwrap(protected)
	if err != nil {
		return nil, statusFromError(err)
	}
	return plaintext, StatusCompleted
}

// SequencingRequired reports whether the mechanism enforces strict message
// ordering, in which case the outer transport must deliver protected
// messages in order. False until the session completes.
func (a *Authenticator) SequencingRequired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseCompleted || a.ctx == nil {
		return false
	}
	return a.ctx.SequencingRequired()
}
