// SPDX-License-Identifier: Apache-2.0

package sharedkey

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"

	negotiate "github.com/golang-auth/go-negotiate"
)

// Handshake tokens and protected messages are framed with a four byte
// magic, so a token from another mechanism is rejected immediately instead
// of being misparsed.
var (
	handshakeMagic = [4]byte{'S', 'K', 'M', '1'}
	messageMagic   = [4]byte{'S', 'K', 'W', '1'}
)

const (
	msgTypeInit      = 1
	msgTypeChallenge = 2
	msgTypeResponse  = 3

	nonceLen = 24
	proofLen = 32

	msgFlagSealed = 0x01
)

// initMessage is the initiator's opening token.
type initMessage struct {
	Level     negotiate.ProtectionLevel // desired protection level
	Nonce     [nonceLen]byte
	Initiator string
	Target    string
}

// challengeMessage is the acceptor's reply: its nonce, the granted level,
// a fresh context identifier and proof of knowledge of the shared secret.
type challengeMessage struct {
	Level     negotiate.ProtectionLevel // granted protection level
	Nonce     [nonceLen]byte
	ContextID uuid.UUID
	Proof     [proofLen]byte
}

// responseMessage closes the handshake with the initiator's proof.
type responseMessage struct {
	ContextID uuid.UUID
	Proof     [proofLen]byte
}

func (m *initMessage) marshal() []byte {
	var buf bytes.Buffer
	buf.Write(handshakeMagic[:])
	buf.WriteByte(msgTypeInit)
	buf.WriteByte(byte(m.Level))
	buf.Write(m.Nonce[:])
	writeString(&buf, m.Initiator)
	writeString(&buf, m.Target)
	return buf.Bytes()
}

func (m *initMessage) unmarshal(b []byte) error {
	r, err := handshakeBody(b, msgTypeInit)
	if err != nil {
		return err
	}

	level, err := r.ReadByte()
	if err != nil {
		return errTruncated()
	}
	m.Level = negotiate.ProtectionLevel(level)

	if _, err := io.ReadFull(r, m.Nonce[:]); err != nil {
		return errTruncated()
	}
	if m.Initiator, err = readString(r); err != nil {
		return err
	}
	if m.Target, err = readString(r); err != nil {
		return err
	}
	return trailingCheck(r)
}

func (m *challengeMessage) marshal() []byte {
	var buf bytes.Buffer
	buf.Write(handshakeMagic[:])
	buf.WriteByte(msgTypeChallenge)
	buf.WriteByte(byte(m.Level))
	buf.Write(m.Nonce[:])
	buf.Write(m.ContextID[:])
	buf.Write(m.Proof[:])
	return buf.Bytes()
}

func (m *challengeMessage) unmarshal(b []byte) error {
	r, err := handshakeBody(b, msgTypeChallenge)
	if err != nil {
		return err
	}

	level, err := r.ReadByte()
	if err != nil {
		return errTruncated()
	}
	m.Level = negotiate.ProtectionLevel(level)

	for _, field := range [][]byte{m.Nonce[:], m.ContextID[:], m.Proof[:]} {
		if _, err := io.ReadFull(r, field); err != nil {
			return errTruncated()
		}
	}
	return trailingCheck(r)
}

func (m *responseMessage) marshal() []byte {
	var buf bytes.Buffer
	buf.Write(handshakeMagic[:])
	buf.WriteByte(msgTypeResponse)
	buf.Write(m.ContextID[:])
	buf.Write(m.Proof[:])
	return buf.Bytes()
}

func (m *responseMessage) unmarshal(b []byte) error {
	r, err := handshakeBody(b, msgTypeResponse)
	if err != nil {
		return err
	}

	for _, field := range [][]byte{m.ContextID[:], m.Proof[:]} {
		if _, err := io.ReadFull(r, field); err != nil {
			return errTruncated()
		}
	}
	return trailingCheck(r)
}

// handshakeBody validates the magic and message type and returns a reader
// over the remainder of the token.
func handshakeBody(b []byte, wantType byte) (*bytes.Reader, error) {
	if len(b) < len(handshakeMagic)+1 || !bytes.Equal(b[:len(handshakeMagic)], handshakeMagic[:]) {
		return nil, fmt.Errorf("not a shared-key token: %w", negotiate.ErrInvalidToken)
	}
	if b[len(handshakeMagic)] != wantType {
		return nil, fmt.Errorf("unexpected message type %d (want %d): %w",
			b[len(handshakeMagic)], wantType, negotiate.ErrInvalidToken)
	}
	return bytes.NewReader(b[len(handshakeMagic)+1:]), nil
}

func writeString(buf *bytes.Buffer, s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var l [2]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return "", errTruncated()
	}
	b := make([]byte, binary.BigEndian.Uint16(l[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return "", errTruncated()
	}
	return string(b), nil
}

func trailingCheck(r *bytes.Reader) error {
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes: %w", r.Len(), negotiate.ErrInvalidToken)
	}
	return nil
}

func errTruncated() error {
	return fmt.Errorf("truncated token: %w", negotiate.ErrInvalidToken)
}
