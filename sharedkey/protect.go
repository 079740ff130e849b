// SPDX-License-Identifier: Apache-2.0

package sharedkey

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	negotiate "github.com/golang-auth/go-negotiate"
)

// Protected message layout:
//
//	magic   [4]byte  "SKW1"
//	flags   byte     0x01 = sealed
//	seq     uint64   big endian, per direction, starts at 0
//	body    signed: plaintext || HMAC-SHA256 trailer
//	         sealed: AES-256-GCM ciphertext (header as AAD)
const msgHeaderLen = 4 + 1 + 8

func (c *context) header(flags byte, seq uint64) []byte {
	h := make([]byte, msgHeaderLen)
	copy(h, messageMagic[:])
	h[4] = flags
	binary.BigEndian.PutUint64(h[5:], seq)
	return h
}

// Wrap implements negotiate.SecContext.
func (c *context) Wrap(plaintext []byte) ([]byte, error) {
	if err := c.checkAlive(); err != nil {
		return nil, err
	}
	if !c.established {
		return nil, fmt.Errorf("context not established: %w", negotiate.ErrInvalidOperation)
	}
	if c.level == negotiate.ProtectionLevelNone {
		return nil, negotiate.ErrNotSupported
	}

	seq := c.sendSeq
	c.sendSeq++

	if c.level == negotiate.ProtectionLevelEncryptAndSign {
		h := c.header(msgFlagSealed, seq)
		var nonce [12]byte
		binary.BigEndian.PutUint64(nonce[4:], seq)
		out := append([]byte(nil), h...)
		return c.sendSeal.Seal(out, nonce[:], plaintext, h), nil
	}

	h := c.header(0, seq)
	mac := hmac.New(sha256.New, c.sendSign)
	mac.Write(h)
	mac.Write(plaintext)
	out := append(h, plaintext...)
	return mac.Sum(out), nil
}

// Unwrap implements negotiate.SecContext. Messages are accepted strictly in
// send order: a sequence number other than the next expected one fails with
// ErrMessageExpired, and any integrity failure with ErrMessageModified.
func (c *context) Unwrap(protected []byte) ([]byte, error) {
	if err := c.checkAlive(); err != nil {
		return nil, err
	}
	if !c.established {
		return nil, fmt.Errorf("context not established: %w", negotiate.ErrInvalidOperation)
	}
	if c.level == negotiate.ProtectionLevelNone {
		return nil, negotiate.ErrNotSupported
	}

	if len(protected) < msgHeaderLen || !bytes.Equal(protected[:4], messageMagic[:]) {
		return nil, fmt.Errorf("malformed protected message: %w", negotiate.ErrMessageModified)
	}
	h, body := protected[:msgHeaderLen], protected[msgHeaderLen:]

	sealed := h[4]&msgFlagSealed != 0
	if sealed != (c.level == negotiate.ProtectionLevelEncryptAndSign) {
		return nil, fmt.Errorf("protection flags disagree with negotiated level: %w", negotiate.ErrMessageModified)
	}

	seq := binary.BigEndian.Uint64(h[5:])
	if seq != c.recvSeq {
		return nil, fmt.Errorf("sequence %d, expected %d: %w", seq, c.recvSeq, negotiate.ErrMessageExpired)
	}

	var plaintext []byte
	if sealed {
		var nonce [12]byte
		binary.BigEndian.PutUint64(nonce[4:], seq)
		pt, err := c.recvSeal.Open(nil, nonce[:], body, h)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", negotiate.ErrMessageModified, err)
		}
		plaintext = pt
	} else {
		if len(body) < proofLen {
			return nil, fmt.Errorf("malformed protected message: %w", negotiate.ErrMessageModified)
		}
		pt, tag := body[:len(body)-proofLen], body[len(body)-proofLen:]
		mac := hmac.New(sha256.New, c.recvSign)
		mac.Write(h)
		mac.Write(pt)
		if !hmac.Equal(tag, mac.Sum(nil)) {
			return nil, fmt.Errorf("signature mismatch: %w", negotiate.ErrMessageModified)
		}
		plaintext = append([]byte(nil), pt...)
	}

	// only advance the window once the message has authenticated
	c.recvSeq++
	return plaintext, nil
}
