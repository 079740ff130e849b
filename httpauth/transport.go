// SPDX-License-Identifier: Apache-2.0

package httpauth

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	negotiate "github.com/golang-auth/go-negotiate"
)

// SpnFunc returns the target service name for a URL.
type SpnFunc func(u url.URL) string

func defaultSpnFunc(u url.URL) string {
	return "HTTP/" + u.Hostname()
}

// maxRounds bounds the number of HTTP round trips spent establishing one
// context. The exchange length is mechanism-determined, but a server that
// keeps answering 401 with fresh challenges must not loop us forever.
const maxRounds = 5

// Transport is a [http.RoundTripper] that performs Negotiate
// authentication, driving a client session through as many 401 round
// trips as the mechanism needs.
type Transport struct {
	base       http.RoundTripper
	pkg        string
	engine     negotiate.Engine
	credential negotiate.Credential
	spnFunc    SpnFunc
	logger     logrus.FieldLogger
	bindTLS    bool
}

// TransportOption configures a Transport.
type TransportOption func(t *Transport)

// WithEngine injects a configured engine instance instead of resolving the
// package name through the registry.
func WithEngine(e negotiate.Engine) TransportOption {
	return func(t *Transport) {
		t.engine = e
	}
}

// WithCredential uses explicit identity material for all requests.
func WithCredential(cred negotiate.Credential) TransportOption {
	return func(t *Transport) {
		t.credential = cred
	}
}

// WithSpnFunc overrides how the target service name is derived from the
// request URL. The default is "HTTP/" + hostname.
func WithSpnFunc(f SpnFunc) TransportOption {
	return func(t *Transport) {
		t.spnFunc = f
	}
}

// WithBaseTransport wraps a custom round tripper instead of
// [http.DefaultTransport].
func WithBaseTransport(rt http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.base = rt
	}
}

// WithLogger routes the transport's diagnostics to a specific logger.
func WithLogger(l logrus.FieldLogger) TransportOption {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithTLSChannelBinding binds the authentication exchange to the server's
// TLS certificate (RFC 5929 tls-server-end-point). Requests over plain
// HTTP are unaffected.
func WithTLSChannelBinding() TransportOption {
	return func(t *Transport) {
		t.bindTLS = true
	}
}

// NewTransport creates a Negotiate transport for the given mechanism
// package ("shared-key", "ntlm", ...).
func NewTransport(pkg string, opts ...TransportOption) *Transport {
	t := &Transport{
		base:    http.DefaultTransport,
		pkg:     pkg,
		spnFunc: defaultSpnFunc,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewClient returns a [http.Client] whose transport performs Negotiate
// authentication.
func NewClient(pkg string, opts ...TransportOption) *http.Client {
	return &http.Client{Transport: NewTransport(pkg, opts...)}
}

func (t *Transport) newSession(u url.URL, tlsState *tls.ConnectionState) (*negotiate.Authenticator, error) {
	opts := []negotiate.Option{}
	if t.engine != nil {
		opts = append(opts, negotiate.WithEngine(t.engine))
	}
	if !t.credential.IsDefault() {
		opts = append(opts, negotiate.WithCredential(t.credential))
	}
	if t.bindTLS && tlsState != nil {
		binding, err := endpointBinding(tlsState, nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, negotiate.WithChannelBinding(binding))
	}
	return negotiate.NewClientAuthenticator(t.pkg, t.spnFunc(u), opts...)
}

// RoundTrip implements [http.RoundTripper]. It may perform several round
// trips against the server to complete the token exchange; the request
// body must be rewindable (req.GetBody set, as it is for requests built by
// http.NewRequest) if the server demands authentication after the first
// attempt.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	var auth *negotiate.Authenticator
	defer func() {
		if auth != nil {
			auth.Close() //nolint:errcheck
		}
	}()

	var resp *http.Response
	for round := 0; round < maxRounds; round++ {
		var err error
		if resp, err = t.base.RoundTrip(req); err != nil {
			return nil, err
		}

		challenge, present := negotiateChallenge(resp.Header)
		if !present || resp.StatusCode != http.StatusUnauthorized {
			// either the URL needs no authentication, or the exchange is
			// over and this is the final response
			break
		}

		if auth == nil {
			if auth, err = t.newSession(*req.URL, resp.TLS); err != nil {
				return nil, err
			}
		} else if challenge == "" {
			// the server restarted authentication mid-exchange
			auth.Abort(negotiate.StatusGenericFailure)
			return nil, fmt.Errorf("negotiate: empty challenge during context establishment")
		}

		token, code := auth.StepString(challenge)
		if code.IsError() {
			t.logger.WithFields(logrus.Fields{
				"url":    req.URL.Redacted(),
				"status": code.String(),
			}).Warn("negotiate authentication failed")
			return nil, fmt.Errorf("negotiate: %w", code.Err())
		}

		if token != "" {
			req.Header.Set("Authorization", scheme+" "+token)
		}

		if req.Body != nil {
			if req.GetBody == nil {
				return nil, fmt.Errorf("negotiate: request body is not rewindable")
			}
			if req.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}

		// the connection must be reused for the next leg
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()              //nolint:errcheck
	}

	// a started exchange must have finished by now
	if auth != nil && !auth.IsComplete() {
		if resp.StatusCode == http.StatusUnauthorized {
			auth.Abort(negotiate.StatusGenericFailure)
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()              //nolint:errcheck
			return nil, fmt.Errorf("negotiate: authentication rejected by %s", req.URL.Redacted())
		}
		// final response arrived while we still expected a challenge
		t.logger.WithField("url", req.URL.Redacted()).
			Debug("server stopped challenging before context establishment")
	}

	return resp, nil
}
