package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestHeadersDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "key-1", Secret: "topsecret"}

	a := auth.RequestHeadersAt("POST", "/api/v1/order", `{"qty":1}`, 1700000000000)
	b := auth.RequestHeadersAt("POST", "/api/v1/order", `{"qty":1}`, 1700000000000)
	assert.Equal(t, a, b)
	assert.Equal(t, "key-1", a["X-ARB-API-KEY"])
	assert.Equal(t, "1700000000000", a["X-ARB-TIMESTAMP"])
	assert.Len(t, a["X-ARB-SIGNATURE"], 64) // hex SHA-256

	// Any change to the signed message changes the signature.
	c := auth.RequestHeadersAt("POST", "/api/v1/order", `{"qty":2}`, 1700000000000)
	assert.NotEqual(t, a["X-ARB-SIGNATURE"], c["X-ARB-SIGNATURE"])
}

func TestSignQuery(t *testing.T) {
	auth := &HMACAuth{Secret: "topsecret"}
	signed := auth.SignQuery("symbol=BTCUSDT&side=BUY")
	assert.Contains(t, signed, "symbol=BTCUSDT&side=BUY&signature=")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("my-api-secret", "hunter2")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "my-api-secret", got)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadSecretPrecedence(t *testing.T) {
	got, err := LoadSecret(SecretConfig{RawSecret: "raw"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}

func TestStringRedactsCredentials(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef", Secret: "supersecret"}
	s := auth.String()
	assert.NotContains(t, s, "supersecret")
	assert.Contains(t, s, "abcd****")
}
