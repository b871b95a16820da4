package keys

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestJWKThumbprintDeterminism covers spec.md section 8 invariant 1: the
// thumbprint derived from a signer is the same on repeated calls and
// matches go-jose's RFC 7638 thumbprint of the JWK JWKForSigner builds.
func TestJWKThumbprintDeterminism(t *testing.T) {
	signer, err := NewSigner(RSA)
	require.NoError(t, err)

	first := JWKThumbprint(signer)
	second := JWKThumbprint(signer)
	require.Equal(t, first, second, "thumbprint must be deterministic for the same key")

	rebuilt := JWKForSigner(signer)
	rebuiltThumb, err := rebuilt.Thumbprint(crypto.SHA256)
	require.NoError(t, err)
	require.Equal(t, first, base64.RawURLEncoding.EncodeToString(rebuiltThumb))
}

// TestKeyAuthFormula covers invariant 2: keyAuthorization(t, k) = t || "." || thumbprint(k).
func TestKeyAuthFormula(t *testing.T) {
	signer, err := NewSigner(RSA)
	require.NoError(t, err)

	token := "a-random-token"
	want := token + "." + JWKThumbprint(signer)
	require.Equal(t, want, KeyAuth(signer, token))
}

// TestDNSKeyAuthIsHashedKeyAuth covers the dns-01 published value:
// SHA-256 of the http-01 key authorization, base64url encoded.
func TestDNSKeyAuthIsHashedKeyAuth(t *testing.T) {
	signer, err := NewSigner(RSA)
	require.NoError(t, err)

	token := "another-token"
	keyAuth := KeyAuth(signer, token)
	require.Equal(t, HashKeyAuthorization(keyAuth), DNSKeyAuth(signer, token))
}

// TestBase64URLRoundTrip covers invariant 3.
func TestBase64URLRoundTrip(t *testing.T) {
	original := []byte{0x00, 0x01, 0xff, 0x7e, 0x13, 0x92, 0x04}
	encoded := base64.RawURLEncoding.EncodeToString(original)

	require.NotContains(t, encoded, "=")

	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestSignerPEMRoundTrip(t *testing.T) {
	for _, kt := range []KeyType{RSA, ECDSA} {
		signer, err := NewSigner(kt)
		require.NoError(t, err)

		pemBytes, err := SignerToPEM(signer)
		require.NoError(t, err)

		restored, err := SignerFromPEM([]byte(pemBytes))
		require.NoError(t, err)

		require.Equal(t, JWKThumbprint(signer), JWKThumbprint(restored), "kt=%s", kt)
	}
}

func TestMarshalSignerRoundTrip(t *testing.T) {
	signer, err := NewSigner(RSA)
	require.NoError(t, err)

	der, keyType, err := MarshalSigner(signer)
	require.NoError(t, err)
	require.Equal(t, string(RSA), keyType)

	restored, err := UnmarshalSigner(der, keyType)
	require.NoError(t, err)
	require.Equal(t, JWKThumbprint(signer), JWKThumbprint(restored))
}

func TestPublicExponentAndModulus(t *testing.T) {
	signer, err := NewSigner(RSA)
	require.NoError(t, err)
	pub := signer.Public().(*rsa.PublicKey)

	exp, err := PublicExponent(signer)
	require.NoError(t, err)
	require.Equal(t, pub.E, int(bigEndianToInt(exp)))

	mod, err := Modulus(signer)
	require.NoError(t, err)
	require.Equal(t, pub.N.Bytes(), mod)

	ecSigner, err := NewSigner(ECDSA)
	require.NoError(t, err)
	_, err = PublicExponent(ecSigner)
	require.Error(t, err, "PublicExponent must reject non-RSA keys")
}

func bigEndianToInt(b []byte) int64 {
	var n int64
	for _, v := range b {
		n = n<<8 | int64(v)
	}
	return n
}
