package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedForTest(signer crypto.Signer, dnsName string) ([]byte, error) {
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(42),
		Subject:               pkix.Name{CommonName: dnsName},
		DNSNames:              []string{dnsName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, signer.Public(), signer)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), nil
}

// TestCSRRoundTrip covers spec.md section 8 invariant 6: parsing the CSR
// NewCSR built recovers the same commonName and SAN list, in order.
func TestCSRRoundTrip(t *testing.T) {
	signer, err := NewSigner(RSA)
	require.NoError(t, err)

	cn := "example.com"
	sans := []string{"example.com", "www.example.com", "api.example.com"}

	csr, err := NewCSR(signer, cn, sans)
	require.NoError(t, err)
	require.NotEmpty(t, csr.DER)
	require.Contains(t, csr.PEM, "CERTIFICATE REQUEST")

	info, err := ParseCSR(csr.DER)
	require.NoError(t, err)
	require.Equal(t, cn, info.CommonName)
	require.Equal(t, sans, info.AltNames)
}

func TestCSRDefaultsCommonNameToFirstName(t *testing.T) {
	signer, err := NewSigner(RSA)
	require.NoError(t, err)

	csr, err := NewCSR(signer, "", []string{"first.example.com", "second.example.com"})
	require.NoError(t, err)

	info, err := ParseCSR(csr.DER)
	require.NoError(t, err)
	require.Equal(t, "first.example.com", info.CommonName)
}

func TestCSRRejectsEmptyNames(t *testing.T) {
	signer, err := NewSigner(RSA)
	require.NoError(t, err)

	_, err = NewCSR(signer, "example.com", nil)
	require.Error(t, err)
}

func TestParseLeafCertificate(t *testing.T) {
	// Build a minimal self-signed certificate the way acmetest's mock CA
	// does, and confirm ParseLeafCertificate extracts the fields the
	// orchestrator needs.
	signer, err := NewSigner(RSA)
	require.NoError(t, err)

	pemChain, err := selfSignedForTest(signer, "leaf.example.com")
	require.NoError(t, err)

	info, err := ParseLeafCertificate(pemChain)
	require.NoError(t, err)
	require.Equal(t, "leaf.example.com", info.CommonName)
	require.Contains(t, info.DNSNames, "leaf.example.com")
	require.NotEmpty(t, info.SerialHex)
}
