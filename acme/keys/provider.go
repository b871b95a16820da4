package keys

import (
	"crypto"

	jose "github.com/go-jose/go-jose/v4"
)

// CryptoProvider is the capability boundary spec.md sections 4.1 and 9
// name: key generation, modulus/exponent extraction, signing-key
// construction for JWS, CSR building, and issued-certificate parsing. It
// exists so a second backend (e.g. a subprocess/openssl-backed signer for
// keys that cannot be exported) can be substituted at construction time
// without any caller above it changing; see DefaultProvider, the sole
// implementation this module ships.
type CryptoProvider interface {
	NewSigner(keyType KeyType) (crypto.Signer, error)
	PublicExponent(signer crypto.Signer) ([]byte, error)
	Modulus(signer crypto.Signer) ([]byte, error)
	SigningKeyForSigner(signer crypto.Signer, keyID string) jose.SigningKey
	NewCSR(signer crypto.Signer, commonName string, names []string) (*CSR, error)
	ParseLeafCertificate(pemChain []byte) (*CertificateInfo, error)
}

// DefaultProvider implements CryptoProvider with this package's pure-Go
// crypto/rsa and crypto/x509 backed functions.
type DefaultProvider struct{}

func (DefaultProvider) NewSigner(keyType KeyType) (crypto.Signer, error) {
	return NewSigner(keyType)
}

func (DefaultProvider) PublicExponent(signer crypto.Signer) ([]byte, error) {
	return PublicExponent(signer)
}

func (DefaultProvider) Modulus(signer crypto.Signer) ([]byte, error) {
	return Modulus(signer)
}

func (DefaultProvider) SigningKeyForSigner(signer crypto.Signer, keyID string) jose.SigningKey {
	return SigningKeyForSigner(signer, keyID)
}

func (DefaultProvider) NewCSR(signer crypto.Signer, commonName string, names []string) (*CSR, error) {
	return NewCSR(signer, commonName, names)
}

func (DefaultProvider) ParseLeafCertificate(pemChain []byte) (*CertificateInfo, error) {
	return ParseLeafCertificate(pemChain)
}
