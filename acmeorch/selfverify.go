package acmeorch

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/asn1"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/miekg/dns"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/keys"
	"github.com/acmecore/acmeclient/acme/resources"
)

// acmeTLSALPNOID is the id-pe-acmeIdentifier extension (RFC 8737 section 3).
var acmeTLSALPNOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 31}

// selfVerify checks, before telling the server the challenge is ready,
// that the provisioning done by ChallengeCreateFn actually took effect.
// It runs under the same backoff as status polling (spec.md section 4.4
// "Self-verification").
func (o *Orchestrator) selfVerify(ctx context.Context, authz *resources.Authorization, chall *resources.Challenge, keyAuth string) error {
	switch chall.Type {
	case acme.ChallengeHTTP01:
		return o.retry(ctx, "self-verify[http-01]", func() error {
			return verifyHTTP01(ctx, authz.Identifier.Value, chall.Token, keyAuth)
		})
	case acme.ChallengeDNS01:
		return o.retry(ctx, "self-verify[dns-01]", func() error {
			return verifyDNS01(o.dnsResolver(), authz.Identifier.BaseDomain(), keyAuth)
		})
	case acme.ChallengeTLSALPN01:
		return o.retry(ctx, "self-verify[tls-alpn-01]", func() error {
			return verifyTLSALPN01(authz.Identifier.Value, keyAuth)
		})
	default:
		return fmt.Errorf("acmeorch: no self-verification for challenge type %q", chall.Type)
	}
}

// verifyHTTP01 GETs the well-known path and compares the trimmed body to
// the expected key authorization, per spec.md section 4.4.
func verifyHTTP01(ctx context.Context, identifier, token, keyAuth string) error {
	url := fmt.Sprintf("http://%s/.well-known/acme-challenge/%s", identifier, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("acmeorch: %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(body)) != keyAuth {
		return fmt.Errorf("acmeorch: %s body does not match expected key authorization", url)
	}
	return nil
}

// verifyDNS01 resolves TXT records at _acme-challenge.<baseDomain> against
// resolver (host:port) and checks that one of them matches the expected
// hashed key authorization.
func verifyDNS01(resolver, baseDomain, keyAuth string) error {
	want := keys.HashKeyAuthorization(keyAuth)
	name := dns.Fqdn("_acme-challenge." + baseDomain)

	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeTXT)
	m.RecursionDesired = true

	c := new(dns.Client)
	resp, _, err := c.Exchange(m, resolver)
	if err != nil {
		return fmt.Errorf("acmeorch: resolving TXT %s: %w", name, err)
	}

	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		for _, v := range txt.Txt {
			if v == want {
				return nil
			}
		}
	}
	return fmt.Errorf("acmeorch: no TXT record at %s matches expected key authorization", name)
}

// verifyTLSALPN01 is a best-effort probe: it opens a TLS connection
// negotiating the acme-tls/1 protocol and checks the peer certificate's
// id-pe-acmeIdentifier extension against SHA-256(keyAuthorization), per
// RFC 8737.
func verifyTLSALPN01(identifier, keyAuth string) error {
	sum := sha256.Sum256([]byte(keyAuth))
	want := sum[:]

	conn, err := tls.Dial("tcp", identifier+":443", &tls.Config{
		ServerName:         identifier,
		NextProtos:         []string{"acme-tls/1"},
		InsecureSkipVerify: true,
	})
	if err != nil {
		return fmt.Errorf("acmeorch: tls-alpn-01 dial %s: %w", identifier, err)
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("acmeorch: tls-alpn-01 %s presented no certificate", identifier)
	}
	leaf := state.PeerCertificates[0]

	for _, ext := range leaf.Extensions {
		if ext.Id.Equal(acmeTLSALPNOID) {
			var got []byte
			if _, err := asn1.Unmarshal(ext.Value, &got); err != nil {
				got = ext.Value
			}
			if string(got) == string(want) {
				return nil
			}
			return fmt.Errorf("acmeorch: tls-alpn-01 %s extension value mismatch", identifier)
		}
	}
	return fmt.Errorf("acmeorch: tls-alpn-01 %s certificate missing id-pe-acmeIdentifier extension", identifier)
}
