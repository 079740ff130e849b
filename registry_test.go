// SPDX-License-Identifier: Apache-2.0
package negotiate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type someEngine struct {
	name string
}

func (e someEngine) Name() string { return e.name }

func (someEngine) NewContext(cfg ContextConfig) (SecContext, error) {
	return nil, ErrUnsupported
}

func TestRegisterEngine(t *testing.T) {
	assert := assert.New(t)

	constructor := func() (Engine, error) {
		return someEngine{name: "TEST"}, nil
	}

	RegisterEngine("Test", constructor)

	e, err := NewEngine("test")
	assert.NoError(err)
	assert.NotNil(e)
	se, ok := e.(someEngine)
	assert.True(ok)
	assert.Equal("TEST", se.name)

	// lookup is case-insensitive
	e, err = NewEngine("TEST")
	assert.NoError(err)
	assert.NotNil(e)

	e, err = NewEngine("xyz")
	assert.ErrorIs(err, ErrEngineNotFound)
	assert.Nil(e)

	assert.NotPanics(func() { MustNewEngine("test") })
	assert.Panics(func() { MustNewEngine("xyz") })

	assert.Contains(Engines(), "test")
}
