// SPDX-License-Identifier: Apache-2.0
package httpauth

import (
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	negotiate "github.com/golang-auth/go-negotiate"
	"github.com/golang-auth/go-negotiate/sharedkey"
)

var testKeytab = sharedkey.Keytab{
	"alice":          []byte("alice-shared-secret-0123456789ab"),
	"HTTP/127.0.0.1": []byte("http-service-secret-0123456789ab"),
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// startServer runs an httptest server whose handler requires Negotiate
// authentication and echoes the authenticated peer name.
func startServer(t *testing.T, engine negotiate.Engine) *httptest.Server {
	t.Helper()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := PeerName(r)
		require.True(t, ok, "peer name missing from request context")
		w.Write([]byte("hello " + name)) //nolint:errcheck
	})

	srv := httptest.NewServer(NewHandler(sharedkey.EngineName, inner,
		WithAcceptorEngine(engine),
		WithHandlerLogger(quietLogger())))
	t.Cleanup(srv.Close)
	return srv
}

func TestNegotiateOverHTTP(t *testing.T) {
	engine := sharedkey.New(testKeytab)
	srv := startServer(t, engine)

	// the default SPN for the httptest URL is HTTP/127.0.0.1
	client := NewClient(sharedkey.EngineName,
		WithEngine(engine),
		WithCredential(negotiate.Credential{Username: "alice"}),
		WithSpnFunc(defaultSpnFunc),
		WithLogger(quietLogger()))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello alice", string(body))
}

func TestUnknownClientRejected(t *testing.T) {
	serverEngine := sharedkey.New(testKeytab)
	clientEngine := sharedkey.New(sharedkey.Keytab{
		"mallory": []byte("mallory-shared-secret-0123456789"),
	})
	srv := startServer(t, serverEngine)

	client := NewClient(sharedkey.EngineName,
		WithEngine(clientEngine),
		WithCredential(negotiate.Credential{Username: "mallory"}),
		WithLogger(quietLogger()))

	resp, err := client.Get(srv.URL) //nolint:bodyclose
	if err == nil {
		defer resp.Body.Close() //nolint:errcheck
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestUnauthenticatedRequestChallenged(t *testing.T) {
	srv := startServer(t, sharedkey.New(testKeytab))

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Negotiate", resp.Header.Get("WWW-Authenticate"))
}

func TestTransportPassThrough(t *testing.T) {
	// a server that never asks for authentication
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(sharedkey.EngineName,
		WithEngine(sharedkey.New(testKeytab)),
		WithCredential(negotiate.Credential{Username: "alice"}),
		WithLogger(quietLogger()))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

// challengingContext is an acceptor context that never finishes, so every
// exchange it serves stays half-open.
type challengingContext struct {
	released int
}

func (c *challengingContext) Step([]byte) ([]byte, bool, error) {
	return []byte("again"), false, nil
}

func (c *challengingContext) NegotiatedLevel() negotiate.ProtectionLevel {
	return negotiate.ProtectionLevelNone
}
func (c *challengingContext) PeerName() string         { return "" }
func (c *challengingContext) SequencingRequired() bool { return false }
func (c *challengingContext) Wrap([]byte) ([]byte, error) {
	return nil, negotiate.ErrNotSupported
}
func (c *challengingContext) Unwrap([]byte) ([]byte, error) {
	return nil, negotiate.ErrNotSupported
}
func (c *challengingContext) Release() error {
	c.released++
	return nil
}

type challengingEngine struct {
	ctx *challengingContext
}

func (e *challengingEngine) Name() string { return "challenging" }
func (e *challengingEngine) NewContext(negotiate.ContextConfig) (negotiate.SecContext, error) {
	return e.ctx, nil
}

func pendingCount(h *Handler) int {
	n := 0
	h.pending.Range(func(_, _ any) bool { n++; return true })
	return n
}

func TestAbandonedExchangeEvicted(t *testing.T) {
	ctx := &challengingContext{}
	handler := NewHandler("challenging",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		WithAcceptorEngine(&challengingEngine{ctx: ctx}),
		WithPendingTTL(5*time.Millisecond),
		WithHandlerLogger(quietLogger()))

	// first leg of an exchange the client then walks away from
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	req.Header.Set("Authorization", "Negotiate "+negotiate.EncodeToken([]byte("leg1")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 1, pendingCount(handler))
	require.Zero(t, ctx.released)

	time.Sleep(10 * time.Millisecond)

	// an unrelated request sweeps the expired entry
	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "192.0.2.8:4242"
	handler.ServeHTTP(httptest.NewRecorder(), other)

	assert.Zero(t, pendingCount(handler))
	assert.Equal(t, 1, ctx.released, "evicted session was not closed")
}

func TestPendingExchangeKeptBeforeDeadline(t *testing.T) {
	ctx := &challengingContext{}
	handler := NewHandler("challenging",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		WithAcceptorEngine(&challengingEngine{ctx: ctx}),
		WithHandlerLogger(quietLogger()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	req.Header.Set("Authorization", "Negotiate "+negotiate.EncodeToken([]byte("leg1")))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 1, pendingCount(handler))

	// a sweep before the deadline leaves the exchange alone
	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "192.0.2.8:4242"
	handler.ServeHTTP(httptest.NewRecorder(), other)

	assert.Equal(t, 1, pendingCount(handler))
	assert.Zero(t, ctx.released)
}

func TestChannelBindingOverTLS(t *testing.T) {
	engine := sharedkey.New(testKeytab)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, _ := PeerName(r)
		w.Write([]byte("hello " + name)) //nolint:errcheck
	})

	handler := NewHandler(sharedkey.EngineName, inner,
		WithAcceptorEngine(engine),
		WithHandlerLogger(quietLogger()))
	srv := httptest.NewTLSServer(handler)
	defer srv.Close()

	// bind the handler to the certificate httptest generated
	cert, err := x509.ParseCertificate(srv.TLS.Certificates[0].Certificate[0])
	require.NoError(t, err)
	WithHandlerChannelBinding(cert)(handler)

	client := NewClient(sharedkey.EngineName,
		WithEngine(engine),
		WithCredential(negotiate.Credential{Username: "alice"}),
		WithTLSChannelBinding(),
		WithBaseTransport(srv.Client().Transport),
		WithLogger(quietLogger()))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello alice", string(body))
}

func TestNegotiateChallengeParsing(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		token   string
		present bool
	}{
		{"absent", nil, "", false},
		{"bare scheme", []string{"Negotiate"}, "", true},
		{"with token", []string{"Negotiate dG9rZW4="}, "dG9rZW4=", true},
		{"other scheme", []string{`Basic realm="x"`}, "", false},
		{"mixed schemes", []string{`Basic realm="x"`, "Negotiate dG9rZW4="}, "dG9rZW4=", true},
		{"case insensitive", []string{"negotiate dG9rZW4="}, "dG9rZW4=", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for _, v := range tc.headers {
				h.Add("WWW-Authenticate", v)
			}
			token, present := negotiateChallenge(h)
			assert.Equal(t, tc.present, present)
			assert.Equal(t, tc.token, token)
		})
	}
}

func TestAuthzTokenParsing(t *testing.T) {
	h := http.Header{}
	_, present := authzToken(h)
	assert.False(t, present)

	h.Set("Authorization", "Negotiate dG9rZW4=")
	token, present := authzToken(h)
	assert.True(t, present)
	assert.Equal(t, "dG9rZW4=", token)

	h.Set("Authorization", "Bearer xyz")
	_, present = authzToken(h)
	assert.False(t, present)
}
