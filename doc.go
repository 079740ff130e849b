// SPDX-License-Identifier: Apache-2.0

/*
Package negotiate implements a generic challenge/response authentication
session for the Go programming language, in the style of the Windows
Negotiate (SPNEGO) security package.

The package drives one party's side of an authentication exchange: the
caller repeatedly calls [Authenticator.Step] with the peer's last token
and relays the returned token over whatever outer protocol is in use
(HTTP, SMTP, a custom TCP framing, ...). Transport of the tokens is
entirely the caller's concern. Once the exchange completes, the
negotiated security context can protect application messages with
[Authenticator.Wrap] and [Authenticator.Unwrap].

The actual token generation is performed by a negotiation engine
implementing the [Engine] interface, named after the mechanism family it
provides ("shared-key", "ntlm", ...). Engines register themselves with
[RegisterEngine] and are selected by the package name passed to
[NewClientAuthenticator] or [NewServerAuthenticator].
*/
package negotiate
