package keyring

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyring_Roundtrip(t *testing.T) {
	keyring.MockInit()

	require.False(t, HasPassword("alice"))
	_, err := GetPassword("alice")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, SavePassword("alice", "pw"))
	require.True(t, HasPassword("alice"))
	got, err := GetPassword("alice")
	require.NoError(t, err)
	require.Equal(t, "pw", got)

	require.NoError(t, DeletePassword("alice"))
	require.False(t, HasPassword("alice"))
	require.NoError(t, DeletePassword("alice"), "deleting twice is fine")
}
