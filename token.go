// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"encoding/base64"
	"fmt"
)

// EncodeToken converts an opaque binary token to its transport-safe text
// form: standard base64, padded, without line wrapping. An empty token
// encodes to the empty string.
func EncodeToken(token []byte) string {
	return base64.StdEncoding.EncodeToString(token)
}

// DecodeToken converts the text form of a token back to bytes. Malformed
// input (wrong alphabet, bad padding) fails with an error wrapping
// ErrInvalidToken rather than a bare decoder error.
//
// DecodeToken is the inverse of EncodeToken for every byte sequence,
// including the empty one.
func DecodeToken(text string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return b, nil
}
