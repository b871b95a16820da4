package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net"
	"time"
)

// CSR holds both encodings of a generated certificate signing request, as
// the spec's FinalizeOrder call needs the raw DER for the JWS payload and
// callers generally want the PEM form for logging or persistence.
type CSR struct {
	DER []byte
	PEM string
	B64 string
}

// NewCSR builds a PKCS#10 CertificateSigningRequest for commonName and
// names, signed by signer. If commonName is empty the first of names is
// used, per RFC 5280's convention that the CN SHOULD be included in the
// SAN list. IP-literal entries in names are placed in IPAddresses rather
// than DNSNames.
func NewCSR(signer crypto.Signer, commonName string, names []string) (*CSR, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("keys: NewCSR requires at least one name")
	}
	if commonName == "" {
		commonName = names[0]
	}

	var dnsNames []string
	var ips []net.IP
	for _, n := range names {
		if ip := net.ParseIP(n); ip != nil {
			ips = append(ips, ip)
			continue
		}
		dnsNames = append(dnsNames, n)
	}

	template := x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: commonName},
		DNSNames:           dnsNames,
		IPAddresses:        ips,
		SignatureAlgorithm: csrSignatureAlgorithm(signer),
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, &template, signer)
	if err != nil {
		return nil, fmt.Errorf("keys: creating CSR: %w", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})

	return &CSR{
		DER: der,
		PEM: string(pemBytes),
		B64: base64.RawURLEncoding.EncodeToString(der),
	}, nil
}

func csrSignatureAlgorithm(signer crypto.Signer) x509.SignatureAlgorithm {
	switch signer.Public().(type) {
	case *ecdsa.PublicKey:
		return x509.ECDSAWithSHA256
	case *rsa.PublicKey:
		return x509.SHA256WithRSA
	default:
		return x509.UnknownSignatureAlgorithm
	}
}

// CSRInfo is the set of identifiers requested by a CertificateSigningRequest.
type CSRInfo struct {
	CommonName string
	AltNames   []string
}

// ParseCSR extracts the requested common name and SAN list (DNS names
// followed by any IP literals, in the order the CSR encodes them) from
// a DER-encoded CertificateSigningRequest. It is the inverse of NewCSR,
// used by the orchestrator to derive the identifiers an Order must cover
// from a caller-supplied CSR (spec.md section 4.4 step 2).
func ParseCSR(der []byte) (*CSRInfo, error) {
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("keys: parsing CSR: %w", err)
	}

	alts := append([]string{}, csr.DNSNames...)
	for _, ip := range csr.IPAddresses {
		alts = append(alts, ip.String())
	}

	return &CSRInfo{
		CommonName: csr.Subject.CommonName,
		AltNames:   alts,
	}, nil
}

// CertificateInfo summarizes the leaf of an issued chain, per spec.md
// section 4.1's crypto adapter surface ("parse an issued certificate to
// confirm it covers the requested identifiers").
type CertificateInfo struct {
	CommonName string
	DNSNames   []string
	NotBefore  time.Time
	NotAfter   time.Time
	SerialHex  string
}

// ParseLeafCertificate parses the first certificate in a PEM chain (the
// leaf, by ACME convention; see RFC 8555 section 7.4.2) and extracts the
// fields the orchestrator checks against the requested identifiers.
func ParseLeafCertificate(pemChain []byte) (*CertificateInfo, error) {
	block, _ := pem.Decode(pemChain)
	if block == nil {
		return nil, fmt.Errorf("keys: no PEM block found in certificate chain")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parsing leaf certificate: %w", err)
	}
	return &CertificateInfo{
		CommonName: cert.Subject.CommonName,
		DNSNames:   cert.DNSNames,
		NotBefore:  cert.NotBefore,
		NotAfter:   cert.NotAfter,
		SerialHex:  fmt.Sprintf("%x", cert.SerialNumber),
	}, nil
}
