package acmeorch

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/acmecore/acmeclient/acme/keys"
)

// TestVerifyHTTP01MatchesBody covers self-verification for http-01: the
// well-known path must serve exactly token+"."+thumbprint.
func TestVerifyHTTP01MatchesBody(t *testing.T) {
	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)
	keyAuth := keys.KeyAuth(signer, "the-token")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/acme-challenge/the-token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(keyAuth + "\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	identifier := strings.TrimPrefix(srv.URL, "http://")
	require.NoError(t, verifyHTTP01(context.Background(), identifier, "the-token", keyAuth))
}

func TestVerifyHTTP01RejectsMismatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/acme-challenge/the-token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("wrong-value"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	identifier := strings.TrimPrefix(srv.URL, "http://")
	err := verifyHTTP01(context.Background(), identifier, "the-token", "expected-value")
	require.Error(t, err)
}

func TestVerifyHTTP01RejectsNon200(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/acme-challenge/the-token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	identifier := strings.TrimPrefix(srv.URL, "http://")
	err := verifyHTTP01(context.Background(), identifier, "the-token", "expected-value")
	require.Error(t, err)
}

// testDNSServer runs a miekg/dns server over UDP on an ephemeral port,
// answering every TXT query for name with the given values.
func testDNSServer(t *testing.T, name string, values []string) (addr string, shutdown func()) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(dns.Fqdn(name), func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		for _, v := range values {
			m.Answer = append(m.Answer, &dns.TXT{
				Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
				Txt: []string{v},
			})
		}
		w.WriteMsg(m)
	})

	server := &dns.Server{PacketConn: pc, Handler: mux}
	ready := make(chan struct{})
	server.NotifyStartedFunc = func() { close(ready) }
	go server.ActivateAndServe()
	<-ready

	return pc.LocalAddr().String(), func() { server.Shutdown() }
}

// TestVerifyDNS01MatchesRecord covers self-verification for dns-01: the
// TXT record at _acme-challenge.<domain> must contain the expected
// base64url SHA-256 hash of the key authorization.
func TestVerifyDNS01MatchesRecord(t *testing.T) {
	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)
	keyAuth := keys.KeyAuth(signer, "the-token")
	require.NoError(t, err)
	hashed := keys.HashKeyAuthorization(keyAuth)

	addr, shutdown := testDNSServer(t, "_acme-challenge.example.com.", []string{hashed})
	defer shutdown()

	require.NoError(t, verifyDNS01(addr, "example.com", keyAuth))
}

func TestVerifyDNS01RejectsMismatch(t *testing.T) {
	addr, shutdown := testDNSServer(t, "_acme-challenge.example.com.", []string{"wrong-hash"})
	defer shutdown()

	err := verifyDNS01(addr, "example.com", "whatever")
	require.Error(t, err)
}
