package keychain

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNLifecycle(t *testing.T) {
	m := NewManagerWithRing(keyring.NewArrayKeyring(nil))

	_, err := m.LoadDBDSN()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SaveDBDSN("postgresql://u:p@localhost:5432/db"))
	got, err := m.LoadDBDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgresql://u:p@localhost:5432/db", got)

	require.NoError(t, m.ClearDB())
	_, err = m.LoadDBDSN()
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, m.ClearDB(), "clearing twice is not an error")
}
