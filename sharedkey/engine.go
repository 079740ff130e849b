// SPDX-License-Identifier: Apache-2.0

package sharedkey

import (
	"fmt"
	"os"
	"time"

	negotiate "github.com/golang-auth/go-negotiate"
)

// EngineName is the name the engine registers under, and the package name
// sessions use to select it.
const EngineName = "shared-key"

// KeytabEnv names the keytab file read by registry-constructed engines.
const KeytabEnv = "NEGOTIATE_KEYTAB"

func init() {
	negotiate.RegisterEngine(EngineName, func() (negotiate.Engine, error) {
		path := os.Getenv(KeytabEnv)
		if path == "" {
			return nil, fmt.Errorf("%s is not set: %w", KeytabEnv, negotiate.ErrUnknownCredentials)
		}
		kt, def, err := LoadKeytab(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", negotiate.ErrUnknownCredentials, err)
		}
		return New(kt, WithDefaultPrincipal(def)), nil
	})
}

// Engine is a shared-key negotiation engine. One engine instance can serve
// any number of concurrent contexts; the keytab is read-only after
// construction.
type Engine struct {
	keytab           Keytab
	defaultPrincipal string
	maxLevel         negotiate.ProtectionLevel
	lifetime         time.Duration
}

// Option configures an Engine.
type Option func(e *Engine)

// WithDefaultPrincipal names the identity used for sessions created with a
// default (zero) credential.
func WithDefaultPrincipal(name string) Option {
	return func(e *Engine) {
		e.defaultPrincipal = name
	}
}

// WithMaxLevel caps the protection level the engine will negotiate. The
// default is ProtectionLevelEncryptAndSign. An acceptor capped below an
// initiator's desired level grants the cap; the session then fails with
// StatusQopNotSupported if the grant is below its requirement.
func WithMaxLevel(level negotiate.ProtectionLevel) Option {
	return func(e *Engine) {
		e.maxLevel = level
	}
}

// WithLifetime bounds the validity of contexts created by the engine.
// Zero, the default, means contexts do not expire.
func WithLifetime(d time.Duration) Option {
	return func(e *Engine) {
		e.lifetime = d
	}
}

// New creates a shared-key engine over a keytab.
func New(keytab Keytab, opts ...Option) *Engine {
	e := &Engine{
		keytab:   keytab,
		maxLevel: negotiate.ProtectionLevelEncryptAndSign,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements negotiate.Engine.
func (e *Engine) Name() string { return EngineName }

// NewContext implements negotiate.Engine. Credential resolution happens
// here, once: the local principal is the credential's username, or the
// engine's default principal for a zero credential, and its secret must be
// present in the keytab.
func (e *Engine) NewContext(cfg negotiate.ContextConfig) (negotiate.SecContext, error) {
	local := cfg.Credential.Username
	if cfg.Credential.IsDefault() {
		local = e.defaultPrincipal
	}

	c := &context{
		engine: e,
		role:   cfg.Role,
		local:  local,
		level:  e.maxLevel,
	}
	if e.lifetime > 0 {
		c.expiresAt = time.Now().Add(e.lifetime)
	}
	if cb := cfg.ChannelBinding; cb != nil {
		c.bindingData = cb.Data
	}

	switch cfg.Role {
	case negotiate.RoleClient:
		if local == "" {
			return nil, fmt.Errorf("no initiator principal: %w", negotiate.ErrUnknownCredentials)
		}
		secret, ok := e.keytab.Key(local)
		if !ok {
			return nil, fmt.Errorf("initiator %q not in keytab: %w", local, negotiate.ErrUnknownCredentials)
		}
		if cfg.TargetName == "" {
			return nil, fmt.Errorf("no target name: %w", negotiate.ErrTargetUnknown)
		}
		// the initiator asks for as much protection as the engine allows;
		// the session gates the grant against its own requirement
		c.secret = secret
		c.target = cfg.TargetName

	case negotiate.RoleServer:
		// the acceptor's own key is not needed; it proves knowledge of the
		// initiator's secret, looked up when the opening token arrives.
		c.target = local

	default:
		return nil, fmt.Errorf("role %v: %w", cfg.Role, negotiate.ErrUnsupported)
	}

	return c, nil
}
