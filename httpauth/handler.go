// SPDX-License-Identifier: Apache-2.0

package httpauth

import (
	"context"
	"crypto/x509"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	negotiate "github.com/golang-auth/go-negotiate"
)

type contextKey int

const peerNameKey contextKey = iota

// PeerName returns the authenticated peer name stashed in the request
// context by [Handler] for use by the next handler.
func PeerName(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(peerNameKey).(string)
	return name, ok
}

// Handler is HTTP middleware that authenticates requests with the
// Negotiate scheme before passing them on.
//
// Mechanisms that need more than one round trip are supported by keeping
// the half-established session keyed by the client connection's remote
// address between requests, so clients must keep the connection alive
// across the exchange (every mainstream HTTP client does). A client that
// starts an exchange and never returns would otherwise park its session
// here forever, so every entry carries a deadline and expired entries are
// closed and dropped on the next request.
type Handler struct {
	pkg        string
	engine     negotiate.Engine
	credential negotiate.Credential
	next       http.Handler
	logger     logrus.FieldLogger
	serverCert *x509.Certificate
	pendingTTL time.Duration

	pending sync.Map // remote address -> *pendingSession
}

// pendingSession is a half-established exchange waiting for the client's
// next leg.
type pendingSession struct {
	auth     *negotiate.Authenticator
	deadline time.Time
}

// defaultPendingTTL bounds how long a half-open exchange may sit between
// legs. One leg is a single HTTP round trip, so a minute is generous.
const defaultPendingTTL = time.Minute

// HandlerOption configures a Handler.
type HandlerOption func(h *Handler)

// WithAcceptorEngine injects a configured engine instance instead of
// resolving the package name through the registry.
func WithAcceptorEngine(e negotiate.Engine) HandlerOption {
	return func(h *Handler) {
		h.engine = e
	}
}

// WithAcceptorCredential sets the service identity the handler accepts
// exchanges for.
func WithAcceptorCredential(cred negotiate.Credential) HandlerOption {
	return func(h *Handler) {
		h.credential = cred
	}
}

// WithHandlerChannelBinding binds exchanges arriving over TLS to the
// server certificate (RFC 5929 tls-server-end-point). cert must be the
// certificate the server presents, since an inbound connection's TLS
// state does not carry the local certificate.
func WithHandlerChannelBinding(cert *x509.Certificate) HandlerOption {
	return func(h *Handler) {
		h.serverCert = cert
	}
}

// WithPendingTTL overrides how long a half-open exchange is kept between
// legs before being closed and evicted.
func WithPendingTTL(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.pendingTTL = d
	}
}

// WithHandlerLogger routes the handler's diagnostics to a specific logger.
func WithHandlerLogger(l logrus.FieldLogger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler creates Negotiate middleware for the given mechanism package,
// wrapping next.
func NewHandler(pkg string, next http.Handler, opts ...HandlerOption) *Handler {
	h := &Handler{
		pkg:        pkg,
		next:       next,
		logger:     logrus.StandardLogger(),
		pendingTTL: defaultPendingTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) newSession(r *http.Request) (*negotiate.Authenticator, error) {
	opts := []negotiate.Option{}
	if h.engine != nil {
		opts = append(opts, negotiate.WithEngine(h.engine))
	}
	if !h.credential.IsDefault() {
		opts = append(opts, negotiate.WithCredential(h.credential))
	}
	if h.serverCert != nil && r.TLS != nil {
		binding, err := endpointBinding(r.TLS, h.serverCert)
		if err != nil {
			return nil, err
		}
		opts = append(opts, negotiate.WithChannelBinding(binding))
	}
	return negotiate.NewServerAuthenticator(h.pkg, opts...)
}

func (h *Handler) challenge(w http.ResponseWriter, token string) {
	value := scheme
	if token != "" {
		value += " " + token
	}
	w.Header().Set("WWW-Authenticate", value)
	w.WriteHeader(http.StatusUnauthorized)
}

// sweep closes and drops half-open exchanges whose deadline has passed.
// LoadAndDelete keeps the close away from a concurrent resume of the same
// entry; whichever caller wins owns the session.
func (h *Handler) sweep() {
	now := time.Now()
	h.pending.Range(func(key, value any) bool {
		p := value.(*pendingSession)
		if !now.After(p.deadline) {
			return true
		}
		if _, ok := h.pending.LoadAndDelete(key); ok {
			p.auth.Close() //nolint:errcheck
			h.logger.WithField("remote", key).Debug("evicted abandoned negotiate exchange")
		}
		return true
	})
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.sweep()

	token, present := authzToken(r.Header)
	if !present || token == "" {
		h.challenge(w, "")
		return
	}

	auth, err := h.resumeOrStart(r)
	if err != nil {
		h.logger.WithError(err).Error("cannot create negotiate session")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	out, code := auth.StepString(token)
	switch {
	case code == negotiate.StatusContinueNeeded:
		h.pending.Store(r.RemoteAddr, &pendingSession{
			auth:     auth,
			deadline: time.Now().Add(h.pendingTTL),
		})
		h.challenge(w, out)
		return

	case code.IsError():
		// surface the specific reason in the log; the client only sees 401
		h.pending.Delete(r.RemoteAddr)
		auth.Close() //nolint:errcheck
		h.logger.WithFields(logrus.Fields{
			"remote": r.RemoteAddr,
			"status": code.String(),
		}).Warn("negotiate authentication failed")
		h.challenge(w, "")
		return
	}

	// established: hand the request on with the authenticated peer name
	h.pending.Delete(r.RemoteAddr)
	defer auth.Close() //nolint:errcheck

	if out != "" {
		// final mechanism token the client still needs to see
		w.Header().Set("WWW-Authenticate", scheme+" "+out)
	}
	r = r.WithContext(context.WithValue(r.Context(), peerNameKey, auth.PeerName()))
	h.next.ServeHTTP(w, r)
}

func (h *Handler) resumeOrStart(r *http.Request) (*negotiate.Authenticator, error) {
	if v, ok := h.pending.LoadAndDelete(r.RemoteAddr); ok {
		return v.(*pendingSession).auth, nil
	}
	return h.newSession(r)
}
