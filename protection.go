// SPDX-License-Identifier: Apache-2.0

package negotiate

// ProtectionLevel is the guarantee applied to post-authentication
// application messages. Levels are ordered: EncryptAndSign implies Sign.
type ProtectionLevel int

const (
	// ProtectionLevelNone negotiates no message protection. Wrap and
	// Unwrap are unavailable on such a session.
	ProtectionLevelNone ProtectionLevel = iota

	// ProtectionLevelSign negotiates integrity protection: messages carry
	// a signature but are transmitted in the clear.
	ProtectionLevelSign

	// ProtectionLevelEncryptAndSign negotiates confidentiality and
	// integrity: messages are encrypted and signed.
	ProtectionLevelEncryptAndSign
)

// Satisfies reports whether l meets or exceeds the required level.
func (l ProtectionLevel) Satisfies(required ProtectionLevel) bool {
	return l >= required
}

func (l ProtectionLevel) String() string {
	switch l {
	case ProtectionLevelNone:
		return "None"
	case ProtectionLevelSign:
		return "Sign"
	case ProtectionLevelEncryptAndSign:
		return "EncryptAndSign"
	}

	return "Unknown"
}
