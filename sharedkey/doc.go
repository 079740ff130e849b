// SPDX-License-Identifier: Apache-2.0

/*
Package sharedkey implements a negotiation engine for the "shared-key"
mechanism: mutual authentication between parties that hold a common secret,
distributed out of band in a keytab.

The mechanism is a three-leg exchange. The initiator opens with its name,
the target service name, a nonce and the protection level it wants; the
acceptor answers with its own nonce, a context identifier and a proof that
it knows the initiator's secret; the initiator closes with the matching
proof. Session keys for message signing (HMAC-SHA256) and sealing
(AES-256-GCM) are derived from the secret and both nonces, so each
established context protects messages with fresh keys.

Protected messages carry a strict sequence number per direction: they must
be unwrapped in the order they were wrapped, and a message presented out of
order is rejected as expired.

The engine serves both the initiator and the acceptor role, which makes it
suitable for exercising full two-party exchanges in a single process. It
registers itself under the name "shared-key"; registry-constructed
instances load their keytab from the file named by the NEGOTIATE_KEYTAB
environment variable. Programmatic construction with New and an explicit
[Keytab] is the usual path.
*/
package sharedkey
