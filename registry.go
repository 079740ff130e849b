// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"errors"
	"strings"
	"sync"
)

var ErrEngineNotFound = errors.New("negotiation engine not found")

var registry struct {
	sync.Mutex
	engines map[string]EngineConstructor
}

func init() {
	registry.engines = make(map[string]EngineConstructor)
}

// EngineConstructor defines the function signature passed to RegisterEngine,
// used by the registration interface to create new instances of an engine.
type EngineConstructor func() (Engine, error)

// RegisterEngine associates the supplied engine factory with the unique
// name of the mechanism family it provides. If an engine with name is
// already registered, the new factory replaces the existing registration.
//
// Engines must register themselves by calling RegisterEngine in their
// init() function and should document the name used. Names are matched
// case-insensitively, so a session asking for package "NTLM" finds an
// engine registered as "ntlm".
func RegisterEngine(name string, f EngineConstructor) {
	registry.Lock()
	defer registry.Unlock()

	registry.engines[strings.ToLower(name)] = f
}

// NewEngine instantiates an engine given its registered name, by calling
// the factory registered against the name. ErrEngineNotFound is returned
// if name is not registered.
func NewEngine(name string) (Engine, error) {
	registry.Lock()
	defer registry.Unlock()

	f, ok := registry.engines[strings.ToLower(name)]
	if !ok {
		return nil, ErrEngineNotFound
	}

	return f()
}

// MustNewEngine wraps NewEngine in a panic. It panics if the name is not
// registered or the constructor returns an error.
func MustNewEngine(name string) Engine {
	e, err := NewEngine(name)
	if err != nil {
		panic("negotiate: " + err.Error() + ": " + name)
	}

	return e
}

// Engines returns the names of the registered engines.
func Engines() []string {
	registry.Lock()
	defer registry.Unlock()

	l := make([]string, 0, len(registry.engines))
	for name := range registry.engines {
		l = append(l, name)
	}

	return l
}
