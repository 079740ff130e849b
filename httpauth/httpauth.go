// SPDX-License-Identifier: Apache-2.0

/*
Package httpauth relays negotiate tokens over HTTP, implementing the
Negotiate authentication scheme (RFC 4559) on both sides: a
[net/http.RoundTripper] that authenticates outgoing requests and a
middleware [Handler] that authenticates incoming ones.

The package is an outer-protocol adapter in the sense of the core
negotiate package: it frames tokens as base64 in Authorization and
WWW-Authenticate headers, maps HTTP status codes onto the session, and
decides when to stop exchanging. The authentication semantics live
entirely in the session and its engine.
*/
package httpauth

import (
	"net/http"
	"strings"
)

// scheme is the HTTP authentication scheme name used in headers.
const scheme = "Negotiate"

// negotiateChallenge extracts the Negotiate challenge from a set of
// WWW-Authenticate headers. present reports whether the scheme was offered
// at all; token is its token68 payload, empty on the initial challenge.
func negotiateChallenge(h http.Header) (token string, present bool) {
	for _, value := range h.Values("WWW-Authenticate") {
		// a header may carry several comma-separated challenges; the
		// Negotiate one is a bare scheme or "Negotiate <token68>"
		for _, challenge := range strings.Split(value, ",") {
			challenge = strings.TrimSpace(challenge)
			name, rest, _ := strings.Cut(challenge, " ")
			if !strings.EqualFold(name, scheme) {
				continue
			}
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// authzToken extracts the token from an "Authorization: Negotiate <token>"
// request header.
func authzToken(h http.Header) (token string, present bool) {
	value := h.Get("Authorization")
	if value == "" {
		return "", false
	}
	name, rest, _ := strings.Cut(value, " ")
	if !strings.EqualFold(name, scheme) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
