package client

import (
	"crypto"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	jose "github.com/go-jose/go-jose/v4"

	"github.com/acmecore/acmeclient/acme/keys"
)

type fixedNonceSource struct{ nonce string }

func (f fixedNonceSource) Nonce() (string, error) { return f.nonce, nil }

// TestSignProtectedHeaderShapeEmbeddedKey covers spec.md section 8 invariant 4: the
// decoded "protected" header carries alg, url, a non-empty nonce, and
// exactly one of jwk/kid.
func TestSignProtectedHeaderShapeEmbeddedKey(t *testing.T) {
	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)

	c := &Client{}
	result, err := c.Sign("https://example.com/acme/new-account", []byte(`{}`), &SigningOptions{
		EmbedKey:    true,
		Signer:      signer,
		NonceSource: fixedNonceSource{"test-nonce-1"},
	})
	require.NoError(t, err)

	hdr := decodeProtected(t, result.SerializedJWS)
	require.Equal(t, "RS256", hdr["alg"])
	require.Equal(t, "https://example.com/acme/new-account", hdr["url"])
	require.Equal(t, "test-nonce-1", hdr["nonce"])
	require.NotEmpty(t, hdr["nonce"])

	_, hasJWK := hdr["jwk"]
	_, hasKID := hdr["kid"]
	require.True(t, hasJWK, "embedded-key JWS must carry jwk")
	require.False(t, hasKID, "embedded-key JWS must not also carry kid")
}

func TestSignProtectedHeaderShapeKeyID(t *testing.T) {
	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)

	c := &Client{}
	result, err := c.Sign("https://example.com/acme/order/1", []byte(`{}`), &SigningOptions{
		KeyID:       "https://example.com/acme/account/1",
		Signer:      signer,
		NonceSource: fixedNonceSource{"test-nonce-2"},
	})
	require.NoError(t, err)

	hdr := decodeProtected(t, result.SerializedJWS)
	require.Equal(t, "https://example.com/acme/account/1", hdr["kid"])
	_, hasJWK := hdr["jwk"]
	require.False(t, hasJWK, "kid JWS must not also embed jwk")
}

func TestSigningOptionsRejectsBothKeyIDAndEmbedKey(t *testing.T) {
	opts := &SigningOptions{KeyID: "kid", EmbedKey: true, Signer: nil, NonceSource: fixedNonceSource{"n"}}
	require.Error(t, opts.validate())
}

func TestSigningOptionsRequiresNonceSource(t *testing.T) {
	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)
	opts := &SigningOptions{EmbedKey: true, Signer: signer}
	require.Error(t, opts.validate())
}

// countingCryptoProvider wraps keys.DefaultProvider, counting
// SigningKeyForSigner calls so a test can confirm Client.Crypto is
// actually consulted rather than bypassed in favor of the package-level
// free functions.
type countingCryptoProvider struct {
	keys.DefaultProvider
	calls int
}

func (p *countingCryptoProvider) SigningKeyForSigner(signer crypto.Signer, keyID string) jose.SigningKey {
	p.calls++
	return p.DefaultProvider.SigningKeyForSigner(signer, keyID)
}

// TestSignUsesClientCryptoProvider covers the CryptoProvider construction-
// time substitution spec.md section 9 calls for: Sign must build its
// go-jose SigningKey through c.Crypto, not keys.DefaultProvider directly.
func TestSignUsesClientCryptoProvider(t *testing.T) {
	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)

	cp := &countingCryptoProvider{}
	c := &Client{Crypto: cp}

	_, err = c.Sign("https://example.com/acme/new-account", []byte(`{}`), &SigningOptions{
		EmbedKey:    true,
		Signer:      signer,
		NonceSource: fixedNonceSource{"test-nonce-3"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, cp.calls)
}

func decodeProtected(t *testing.T, serialized []byte) map[string]interface{} {
	t.Helper()
	var env struct {
		Protected string `json:"protected"`
	}
	require.NoError(t, json.Unmarshal(serialized, &env))
	raw, err := base64.RawURLEncoding.DecodeString(env.Protected)
	require.NoError(t, err)
	var hdr map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &hdr))
	return hdr
}
