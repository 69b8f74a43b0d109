package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeConstructor(count int) Constructor {
	return func(map[string]any, TypeEnv) (Output, error) {
		return newFakeOutput(count), nil
	}
}

func TestTypeRegistry_RegisterAndLookup(t *testing.T) {
	types := NewTypeRegistry()

	require.NoError(t, types.Register("strip", fakeConstructor(10)))
	require.NoError(t, types.Register("matrix", fakeConstructor(64)))

	ctor, ok := types.Lookup("strip")
	require.True(t, ok)
	out, err := ctor(nil, TypeEnv{})
	require.NoError(t, err)
	assert.Equal(t, 10, out.PixelCount())

	_, ok = types.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"matrix", "strip"}, types.Names())
}

func TestTypeRegistry_RegisterErrors(t *testing.T) {
	types := NewTypeRegistry()
	require.NoError(t, types.Register("strip", fakeConstructor(1)))

	assert.ErrorIs(t, types.Register("strip", fakeConstructor(1)), ErrTypeExists)
	assert.Error(t, types.Register("", fakeConstructor(1)))
	assert.Error(t, types.Register("nil", nil))
}

func TestRegisterType_PanicsOnDuplicate(t *testing.T) {
	name := "device-test-" + GenerateID()
	RegisterType(name, fakeConstructor(1))

	_, ok := DefaultTypes.Lookup(name)
	assert.True(t, ok)
	assert.Panics(t, func() { RegisterType(name, fakeConstructor(1)) })
}
