package cryptoutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empower1/chainnode/internal/chaintypes"
)

func TestSignAndRecover(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	addr := DeriveAddress(priv.Public())
	digest := Keccak256([]byte("hello chainnode"))

	sig, err := Sign(priv, digest)
	require.NoError(t, err)

	recovered, err := Recover(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestRecover_WrongDigestFailsToMatch(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	addr := DeriveAddress(priv.Public())

	digest := Keccak256([]byte("original message"))
	sig, err := Sign(priv, digest)
	require.NoError(t, err)

	other := Keccak256([]byte("tampered message"))
	recovered, err := Recover(other, sig)
	require.NoError(t, err)
	assert.NotEqual(t, addr, recovered)
}

func TestPrivateKeyFromBytesRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	reconstructed, err := PrivateKeyFromBytes(priv.Bytes())
	require.NoError(t, err)
	assert.Equal(t, DeriveAddress(priv.Public()), DeriveAddress(reconstructed.Public()))
}

func TestPEMSaveAndLoad(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	path := t.TempDir() + "/node.pem"
	require.NoError(t, SavePrivateKeyPEM(priv, path))

	loaded, err := LoadPrivateKeyPEM(path)
	require.NoError(t, err)
	assert.Equal(t, DeriveAddress(priv.Public()), DeriveAddress(loaded.Public()))
}

func TestLoadPrivateKeyPEM_MissingFile(t *testing.T) {
	_, err := LoadPrivateKeyPEM(t.TempDir() + "/missing.pem")
	assert.Error(t, err)
}

func TestSignature_JSONRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	digest := Keccak256([]byte("payload"))
	sig, err := Sign(priv, digest)
	require.NoError(t, err)

	raw, err := json.Marshal(sig)
	require.NoError(t, err)

	var out Signature
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, sig, out)
}

func TestDeriveAddress_Deterministic(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	a1 := DeriveAddress(priv.Public())
	a2 := DeriveAddress(priv.Public())
	assert.Equal(t, a1, a2)
	assert.False(t, a1.IsZero())
	assert.Equal(t, chaintypes.AddressLength, len(a1.Bytes()))
}
