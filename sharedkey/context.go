// SPDX-License-Identifier: Apache-2.0

package sharedkey

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"

	negotiate "github.com/golang-auth/go-negotiate"
)

// context is one party's shared-key security context. It is driven
// sequentially by the owning Authenticator; no internal locking is needed.
type context struct {
	engine *Engine
	role   negotiate.Role

	local       string // local principal name
	target      string // initiator: target service; acceptor: own service name ("" accepts any)
	secret      []byte // initiator's shared secret (acceptor fills it from the keytab on leg 1)
	bindingData []byte
	expiresAt   time.Time

	step        int
	level       negotiate.ProtectionLevel
	contextID   uuid.UUID
	clientNonce [nonceLen]byte
	peerName    string
	established bool
	released    bool

	sendSign, recvSign []byte
	sendSeal, recvSeal cipher.AEAD
	sendSeq, recvSeq   uint64

	// acceptor keeps the initiator's expected proof between legs 1 and 3
	wantProof [proofLen]byte
}

// sessionKeys holds everything derived from one handshake transcript.
type sessionKeys struct {
	initiatorProof [proofLen]byte
	acceptorProof  [proofLen]byte
	initiatorSign  []byte
	acceptorSign   []byte
	initiatorSeal  []byte
	acceptorSeal   []byte
}

// deriveKeys computes the per-context key material. The transcript covers
// both nonces, the context identifier, the granted level, both names and
// the channel binding data, so any disagreement between the parties shows
// up as a proof mismatch.
func deriveKeys(secret []byte, clientNonce, serverNonce [nonceLen]byte, ctxID uuid.UUID,
	granted negotiate.ProtectionLevel, initiator, target string, bindingData []byte) *sessionKeys {

	var transcript bytes.Buffer
	transcript.Write(clientNonce[:])
	transcript.Write(serverNonce[:])
	transcript.Write(ctxID[:])
	transcript.WriteByte(byte(granted))
	writeString(&transcript, initiator)
	writeString(&transcript, target)
	transcript.Write(bindingData)

	base := prf(secret, transcript.Bytes())

	k := &sessionKeys{
		initiatorSign: prf(base, []byte("initiator sign")),
		acceptorSign:  prf(base, []byte("acceptor sign")),
		initiatorSeal: prf(base, []byte("initiator seal")),
		acceptorSeal:  prf(base, []byte("acceptor seal")),
	}
	copy(k.initiatorProof[:], prf(base, []byte("initiator proof")))
	copy(k.acceptorProof[:], prf(base, []byte("acceptor proof")))
	return k
}

func prf(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

// install activates the derived keys for the local role.
func (c *context) install(k *sessionKeys) error {
	if c.role == negotiate.RoleClient {
		c.sendSign, c.recvSign = k.initiatorSign, k.acceptorSign
	} else {
		c.sendSign, c.recvSign = k.acceptorSign, k.initiatorSign
	}

	if c.level != negotiate.ProtectionLevelEncryptAndSign {
		return nil
	}

	sealKeys := [2][]byte{k.initiatorSeal, k.acceptorSeal}
	if c.role == negotiate.RoleServer {
		sealKeys[0], sealKeys[1] = sealKeys[1], sealKeys[0]
	}
	aeads := [2]cipher.AEAD{}
	for i, key := range sealKeys {
		block, err := aes.NewCipher(key)
		if err != nil {
			return fmt.Errorf("%w: %v", negotiate.ErrGenericFailure, err)
		}
		if aeads[i], err = cipher.NewGCM(block); err != nil {
			return fmt.Errorf("%w: %v", negotiate.ErrGenericFailure, err)
		}
	}
	c.sendSeal, c.recvSeal = aeads[0], aeads[1]
	return nil
}

func (c *context) checkAlive() error {
	if c.released {
		return fmt.Errorf("context released: %w", negotiate.ErrInvalidOperation)
	}
	if !c.expiresAt.IsZero() && time.Now().After(c.expiresAt) {
		return negotiate.ErrContextExpired
	}
	return nil
}

// Step implements negotiate.SecContext.
func (c *context) Step(incoming []byte) ([]byte, bool, error) {
	if err := c.checkAlive(); err != nil {
		return nil, false, err
	}
	if c.established {
		return nil, false, fmt.Errorf("context established: %w", negotiate.ErrInvalidOperation)
	}

	if c.role == negotiate.RoleClient {
		return c.stepInitiator(incoming)
	}
	return c.stepAcceptor(incoming)
}

func (c *context) stepInitiator(incoming []byte) ([]byte, bool, error) {
	switch c.step {
	case 0:
		// opening leg: no token from the peer yet
		if len(incoming) != 0 {
			return nil, false, fmt.Errorf("unexpected token before first leg: %w", negotiate.ErrInvalidToken)
		}
		if _, err := rand.Read(c.clientNonce[:]); err != nil {
			return nil, false, fmt.Errorf("%w: %v", negotiate.ErrGenericFailure, err)
		}
		msg := initMessage{
			Level:     c.level,
			Nonce:     c.clientNonce,
			Initiator: c.local,
			Target:    c.target,
		}
		c.step = 1
		return msg.marshal(), false, nil

	case 1:
		var ch challengeMessage
		if err := ch.unmarshal(incoming); err != nil {
			return nil, false, err
		}
		if ch.Level > c.level {
			return nil, false, fmt.Errorf("granted level exceeds request: %w", negotiate.ErrInvalidToken)
		}

		granted := ch.Level
		keys := deriveKeys(c.secret, c.clientNonce, ch.Nonce, ch.ContextID,
			granted, c.local, c.target, c.bindingData)
		if !hmac.Equal(ch.Proof[:], keys.acceptorProof[:]) {
			return nil, false, fmt.Errorf("acceptor proof mismatch: %w", negotiate.ErrInvalidCredentials)
		}

		c.level = granted
		c.contextID = ch.ContextID
		if err := c.install(keys); err != nil {
			return nil, false, err
		}

		resp := responseMessage{ContextID: ch.ContextID, Proof: keys.initiatorProof}
		c.established = true
		c.peerName = c.target
		c.step = 2

		// the final leg must still be delivered to the acceptor
		return resp.marshal(), true, nil
	}

	return nil, false, fmt.Errorf("initiator step %d: %w", c.step, negotiate.ErrInvalidOperation)
}

func (c *context) stepAcceptor(incoming []byte) ([]byte, bool, error) {
	switch c.step {
	case 0:
		if len(incoming) == 0 {
			return nil, false, fmt.Errorf("acceptor needs the initiator's token: %w", negotiate.ErrInvalidToken)
		}
		var init initMessage
		if err := init.unmarshal(incoming); err != nil {
			return nil, false, err
		}
		if c.target != "" && init.Target != c.target {
			return nil, false, fmt.Errorf("target %q not served here: %w", init.Target, negotiate.ErrTargetUnknown)
		}
		secret, ok := c.engine.keytab.Key(init.Initiator)
		if !ok {
			return nil, false, fmt.Errorf("initiator %q not in keytab: %w", init.Initiator, negotiate.ErrUnknownCredentials)
		}

		granted := init.Level
		if granted > c.engine.maxLevel {
			granted = c.engine.maxLevel
		}

		var serverNonce [nonceLen]byte
		if _, err := rand.Read(serverNonce[:]); err != nil {
			return nil, false, fmt.Errorf("%w: %v", negotiate.ErrGenericFailure, err)
		}
		ctxID := uuid.New()

		keys := deriveKeys(secret, init.Nonce, serverNonce, ctxID,
			granted, init.Initiator, init.Target, c.bindingData)

		c.secret = secret
		c.level = granted
		c.contextID = ctxID
		c.clientNonce = init.Nonce
		c.peerName = init.Initiator // provisional until the proof arrives
		c.wantProof = keys.initiatorProof
		if err := c.install(keys); err != nil {
			return nil, false, err
		}

		ch := challengeMessage{
			Level:     granted,
			Nonce:     serverNonce,
			ContextID: ctxID,
			Proof:     keys.acceptorProof,
		}
		c.step = 1
		return ch.marshal(), false, nil

	case 1:
		var resp responseMessage
		if err := resp.unmarshal(incoming); err != nil {
			return nil, false, err
		}
		if resp.ContextID != c.contextID {
			return nil, false, fmt.Errorf("context id mismatch: %w", negotiate.ErrInvalidToken)
		}
		if !hmac.Equal(resp.Proof[:], c.wantProof[:]) {
			return nil, false, fmt.Errorf("initiator proof mismatch: %w", negotiate.ErrInvalidCredentials)
		}

		c.established = true
		c.step = 2
		return nil, true, nil
	}

	return nil, false, fmt.Errorf("acceptor step %d: %w", c.step, negotiate.ErrInvalidOperation)
}

// NegotiatedLevel implements negotiate.SecContext.
func (c *context) NegotiatedLevel() negotiate.ProtectionLevel {
	if !c.established {
		return negotiate.ProtectionLevelNone
	}
	return c.level
}

// PeerName implements negotiate.SecContext.
func (c *context) PeerName() string {
	if !c.established {
		return ""
	}
	return c.peerName
}

// SequencingRequired implements negotiate.SecContext. Shared-key message
// protection always enforces strict per-direction ordering.
func (c *context) SequencingRequired() bool { return true }

// Release implements negotiate.SecContext.
func (c *context) Release() error {
	c.released = true
	c.secret = nil
	c.sendSign, c.recvSign = nil, nil
	c.sendSeal, c.recvSeal = nil, nil
	return nil
}
