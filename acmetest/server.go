// Package acmetest provides an in-process mock ACME server for exercising
// acme/client and acmeorch without a network dependency, in the style of
// the teacher's own httptest-backed fixtures. It implements just enough of
// RFC 8555 to drive the end-to-end scenarios in spec.md section 8: account
// creation/discovery, order creation, authorization/challenge polling,
// finalization, certificate download, key rollover, and a one-shot
// badNonce rejection for replay testing.
package acmetest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/resources"
)

type mockAccount struct {
	id     string
	jwk    jose.JSONWebKey
	thumb  string
	status string
}

type mockChallenge struct {
	typ     acme.ChallengeType
	token   string
	status  string
	url     string
	authzID string
}

type mockAuthz struct {
	id         string
	identifier acme.Identifier
	wildcard   bool
	status     string
	challenges []string // challenge IDs, in authorization order
	pollsLeft  int       // polls remaining before status flips pending->valid
	invalid    bool      // if true, flips to invalid instead of valid
}

type mockOrder struct {
	id             string
	identifiers    []acme.Identifier
	authzIDs       []string
	status         string
	csr            []byte
	certID         string
	accountThumb   string
}

// Server is a mutable, goroutine-safe mock ACME server.
type Server struct {
	t   *testing.T
	srv *httptest.Server

	rootKey  *ecdsa.PrivateKey
	rootCert *x509.Certificate
	rootDER  []byte

	mu            sync.Mutex
	accountsByJWK map[string]*mockAccount
	accountsByID  map[string]*mockAccount
	orders        map[string]*mockOrder
	authzs        map[string]*mockAuthz
	challenges    map[string]*mockChallenge
	certs         map[string][]byte
	nonces        map[string]bool
	nextID        int

	// RejectNextNonce, when true, makes the next signed request fail with
	// badNonce (and a fresh Replay-Nonce header) exactly once, for S5.
	RejectNextNonce bool

	// RejectNonceTimes, when greater than zero, makes that many
	// consecutive signed requests fail with badNonce before one is
	// finally accepted, for testing that a client gives up after
	// retrying once rather than retrying indefinitely.
	RejectNonceTimes int

	// AuthzPolls is how many UpdateAuthz calls a fresh pending authorization
	// requires before flipping to "valid" (or "invalid" if AuthzInvalid).
	AuthzPolls int

	// AuthzInvalid, when true, makes every authorization flip to "invalid"
	// (with AuthzInvalidDetail) instead of "valid", for S6.
	AuthzInvalid       bool
	AuthzInvalidDetail string
}

// NewServer starts a mock ACME server. The caller must call Close (or rely
// on t.Cleanup, which this registers automatically).
func NewServer(t *testing.T) *Server {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "acmetest root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	require.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	s := &Server{
		t:             t,
		rootKey:       rootKey,
		rootCert:      rootCert,
		rootDER:       rootDER,
		accountsByJWK: make(map[string]*mockAccount),
		accountsByID:  make(map[string]*mockAccount),
		orders:        make(map[string]*mockOrder),
		authzs:        make(map[string]*mockAuthz),
		challenges:    make(map[string]*mockChallenge),
		certs:         make(map[string][]byte),
		nonces:        make(map[string]bool),
		AuthzPolls:    2,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.route))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server's directory URL.
func (s *Server) URL() string { return s.srv.URL + "/dir" }

// Close shuts down the underlying httptest.Server.
func (s *Server) Close() { s.srv.Close() }

func (s *Server) url(format string, args ...interface{}) string {
	return s.srv.URL + fmt.Sprintf(format, args...)
}

func (s *Server) id() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/dir":
		s.handleDirectory(w, r)
	case r.URL.Path == "/new-nonce":
		s.handleNewNonce(w, r)
	case r.URL.Path == "/new-account":
		s.handleNewAccount(w, r)
	case strings.HasPrefix(r.URL.Path, "/account/"):
		s.handleAccount(w, r)
	case r.URL.Path == "/new-order":
		s.handleNewOrder(w, r)
	case strings.HasPrefix(r.URL.Path, "/order/"):
		s.handleOrder(w, r)
	case strings.HasPrefix(r.URL.Path, "/authz/"):
		s.handleAuthz(w, r)
	case strings.HasPrefix(r.URL.Path, "/challenge/"):
		s.handleChallenge(w, r)
	case strings.HasPrefix(r.URL.Path, "/finalize/"):
		s.handleFinalize(w, r)
	case strings.HasPrefix(r.URL.Path, "/cert/"):
		s.handleCert(w, r)
	case r.URL.Path == "/key-change":
		s.handleKeyChange(w, r)
	default:
		s.problem(w, http.StatusNotFound, "", "not found")
	}
}

func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	dir := map[string]string{
		string(acme.NewNonce):   s.url("/new-nonce"),
		string(acme.NewAccount): s.url("/new-account"),
		string(acme.NewOrder):   s.url("/new-order"),
		string(acme.KeyChange):  s.url("/key-change"),
		string(acme.RevokeCert): s.url("/revoke-cert"),
	}
	s.writeJSON(w, http.StatusOK, dir)
}

func (s *Server) handleNewNonce(w http.ResponseWriter, r *http.Request) {
	s.issueNonce(w)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) issueNonce(w http.ResponseWriter) string {
	s.mu.Lock()
	n := "nonce-" + s.id()
	s.nonces[n] = true
	s.mu.Unlock()
	w.Header().Set(acme.ReplayNonceHeader, n)
	return n
}

// jwsEnvelope is the flattened-JSON serialization of a JWS, as produced by
// jose.Signer.Sign(...).FullSerialize().
type jwsEnvelope struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type protectedHeader struct {
	Alg   string          `json:"alg"`
	Nonce string          `json:"nonce"`
	URL   string          `json:"url"`
	KID   string          `json:"kid"`
	JWK   *jose.JSONWebKey `json:"jwk"`
}

// verifyJWS parses body as a flattened JWS, consumes its nonce (rejecting
// replay and honoring RejectNextNonce), verifies the signature against
// either the embedded JWK or the account looked up by kid, and returns the
// decoded payload plus the resolved account (nil for a not-yet-existing
// account referenced only by embedded JWK).
func (s *Server) verifyJWS(w http.ResponseWriter, r *http.Request) (payload []byte, hdr protectedHeader, acct *mockAccount, ok bool) {
	var env jwsEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.problem(w, http.StatusBadRequest, "", "malformed JWS: %v", err)
		return nil, hdr, nil, false
	}

	protectedBytes, err := base64.RawURLEncoding.DecodeString(env.Protected)
	if err != nil {
		s.problem(w, http.StatusBadRequest, "", "malformed protected header: %v", err)
		return nil, hdr, nil, false
	}
	if err := json.Unmarshal(protectedBytes, &hdr); err != nil {
		s.problem(w, http.StatusBadRequest, "", "malformed protected header: %v", err)
		return nil, hdr, nil, false
	}

	s.mu.Lock()
	reject := s.RejectNextNonce
	s.RejectNextNonce = false
	if s.RejectNonceTimes > 0 {
		reject = true
		s.RejectNonceTimes--
	}
	valid := s.nonces[hdr.Nonce]
	delete(s.nonces, hdr.Nonce)
	s.mu.Unlock()

	if reject || !valid {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, acme.ProblemBadNonce, "bad or replayed nonce")
		return nil, hdr, nil, false
	}

	full, err := jose.ParseSigned(fullSerialize(env), []jose.SignatureAlgorithm{jose.RS256, jose.ES256})
	if err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "unparseable JWS: %v", err)
		return nil, hdr, nil, false
	}

	var pubKey interface{}
	if hdr.JWK != nil {
		pubKey = hdr.JWK.Key
	} else if hdr.KID != "" {
		s.mu.Lock()
		a := s.accountsByID[hdr.KID]
		s.mu.Unlock()
		if a == nil {
			s.issueNonce(w)
			s.problem(w, http.StatusUnauthorized, acme.ProblemUnauthorized, "unknown account %q", hdr.KID)
			return nil, hdr, nil, false
		}
		pubKey = a.jwk.Key
		acct = a
	} else {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "JWS carries neither jwk nor kid")
		return nil, hdr, nil, false
	}

	payload, err = full.Verify(pubKey)
	if err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusUnauthorized, acme.ProblemUnauthorized, "signature verification failed: %v", err)
		return nil, hdr, nil, false
	}

	if hdr.JWK != nil {
		thumb, _ := hdr.JWK.Thumbprint(crypto.SHA256)
		s.mu.Lock()
		acct = s.accountsByJWK[base64.RawURLEncoding.EncodeToString(thumb)]
		s.mu.Unlock()
	}

	return payload, hdr, acct, true
}

// fullSerialize re-marshals a flattened JWS envelope back to flattened
// JSON carrying only the payload, protected and signature members, which
// go-jose's ParseSigned accepts.
func fullSerialize(env jwsEnvelope) string {
	general := struct {
		Payload    string `json:"payload"`
		Protected  string `json:"protected"`
		Signature  string `json:"signature"`
	}{env.Payload, env.Protected, env.Signature}
	b, _ := json.Marshal(general)
	return string(b)
}

func (s *Server) handleNewAccount(w http.ResponseWriter, r *http.Request) {
	payload, hdr, existing, ok := s.verifyJWS(w, r)
	if !ok {
		return
	}
	if hdr.JWK == nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "newAccount requires an embedded jwk")
		return
	}

	var req struct {
		OnlyReturnExisting bool `json:"onlyReturnExisting"`
	}
	_ = json.Unmarshal(payload, &req)

	thumbBytes, _ := hdr.JWK.Thumbprint(crypto.SHA256)
	thumb := base64.RawURLEncoding.EncodeToString(thumbBytes)

	s.mu.Lock()
	acct := s.accountsByJWK[thumb]
	status := http.StatusCreated
	if acct == nil {
		if req.OnlyReturnExisting {
			s.mu.Unlock()
			s.issueNonce(w)
			s.problem(w, http.StatusBadRequest, "urn:ietf:params:acme:error:accountDoesNotExist", "no account for this key")
			return
		}
		acct = &mockAccount{id: s.url("/account/%s", s.id()), jwk: *hdr.JWK, thumb: thumb, status: "valid"}
		s.accountsByJWK[thumb] = acct
		s.accountsByID[acct.id] = acct
	} else {
		status = http.StatusOK
	}
	_ = existing
	s.mu.Unlock()

	s.issueNonce(w)
	w.Header().Set(acme.LocationHeader, acct.id)
	s.writeJSON(w, status, map[string]interface{}{
		"status":  acct.status,
		"contact": []string{},
	})
}

// handleAccount serves POSTs to an existing account's kid URL: a bare
// update (read-back of status), a contact change, or a deactivation
// request (RFC 8555 sections 7.3.2 and 7.3.6). The signing account,
// resolved by kid, must match the URL being posted to.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	payload, hdr, acct, ok := s.verifyJWS(w, r)
	if !ok {
		return
	}
	acctURL := s.srv.URL + r.URL.Path
	if acct == nil || hdr.KID != acctURL {
		s.issueNonce(w)
		s.problem(w, http.StatusUnauthorized, acme.ProblemUnauthorized, "no such account, or kid does not match URL")
		return
	}

	var req struct {
		Status  resources.AccountStatus `json:"status"`
		Contact []string                `json:"contact"`
	}
	_ = json.Unmarshal(payload, &req)

	s.mu.Lock()
	if req.Status == "deactivated" {
		acct.status = "deactivated"
	}
	status := acct.status
	s.mu.Unlock()

	s.issueNonce(w)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"contact": req.Contact,
	})
}

func (s *Server) handleNewOrder(w http.ResponseWriter, r *http.Request) {
	payload, _, acct, ok := s.verifyJWS(w, r)
	if !ok {
		return
	}
	if acct == nil {
		s.issueNonce(w)
		s.problem(w, http.StatusUnauthorized, acme.ProblemUnauthorized, "no account")
		return
	}

	var req struct {
		Identifiers []acme.Identifier `json:"identifiers"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "malformed newOrder payload: %v", err)
		return
	}

	s.mu.Lock()
	orderID := s.url("/order/%s", s.id())
	o := &mockOrder{id: orderID, identifiers: req.Identifiers, status: "pending", accountThumb: acct.thumb}

	for _, ident := range req.Identifiers {
		authzID := s.url("/authz/%s", s.id())
		wildcard := ident.IsWildcard()
		baseIdent := ident
		if wildcard {
			baseIdent = acme.Identifier{Type: ident.Type, Value: ident.BaseDomain()}
		}
		a := &mockAuthz{id: authzID, identifier: baseIdent, wildcard: wildcard, status: "pending", pollsLeft: s.AuthzPolls}

		httpChallID := s.url("/challenge/%s", s.id())
		s.challenges[httpChallID] = &mockChallenge{typ: acme.ChallengeHTTP01, token: "token-" + s.id(), status: "pending", url: httpChallID, authzID: authzID}
		a.challenges = append(a.challenges, httpChallID)

		dnsChallID := s.url("/challenge/%s", s.id())
		s.challenges[dnsChallID] = &mockChallenge{typ: acme.ChallengeDNS01, token: "token-" + s.id(), status: "pending", url: dnsChallID, authzID: authzID}
		a.challenges = append(a.challenges, dnsChallID)

		s.authzs[authzID] = a
		o.authzIDs = append(o.authzIDs, authzID)
	}
	s.orders[orderID] = o
	s.mu.Unlock()

	s.issueNonce(w)
	w.Header().Set(acme.LocationHeader, orderID)
	s.writeJSON(w, http.StatusCreated, s.orderBody(o))
}

func (s *Server) orderBody(o *mockOrder) map[string]interface{} {
	body := map[string]interface{}{
		"status":         s.orderStatus(o),
		"identifiers":    o.identifiers,
		"authorizations": o.authzIDs,
		"finalize":       s.url("/finalize/%s", strings.TrimPrefix(o.id, s.srv.URL+"/order/")),
	}
	if o.certID != "" {
		body["certificate"] = s.url("/cert/%s", o.certID)
	}
	return body
}

// orderStatus computes an order's status the way a real ACME server would:
// "valid" once finalize has issued a certificate, "ready" once every
// authorization is valid, "invalid" if any authorization is invalid,
// "pending" otherwise. o.status only tracks the finalize-driven "valid"
// transition; readiness is always derived fresh from authz state.
func (s *Server) orderStatus(o *mockOrder) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.status == "valid" {
		return "valid"
	}
	allValid := true
	for _, id := range o.authzIDs {
		a := s.authzs[id]
		if a == nil {
			continue
		}
		if a.status == "invalid" {
			return "invalid"
		}
		if a.status != "valid" {
			allValid = false
		}
	}
	if allValid {
		return "ready"
	}
	return "pending"
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	_, _, _, ok := s.verifyJWS(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	o := s.orders[s.srv.URL+r.URL.Path]
	s.mu.Unlock()
	if o == nil {
		s.issueNonce(w)
		s.problem(w, http.StatusNotFound, "", "no such order")
		return
	}
	s.issueNonce(w)
	s.writeJSON(w, http.StatusOK, s.orderBody(o))
}

func (s *Server) handleAuthz(w http.ResponseWriter, r *http.Request) {
	_, _, _, ok := s.verifyJWS(w, r)
	if !ok {
		return
	}
	authzURL := s.srv.URL + r.URL.Path
	s.mu.Lock()
	a := s.authzs[authzURL]
	s.mu.Unlock()
	if a == nil {
		s.issueNonce(w)
		s.problem(w, http.StatusNotFound, "", "no such authorization")
		return
	}

	s.mu.Lock()
	if a.status == "pending" {
		if a.pollsLeft > 0 {
			a.pollsLeft--
		}
		if a.pollsLeft == 0 {
			if s.AuthzInvalid {
				a.status = "invalid"
				a.invalid = true
			} else {
				a.status = "valid"
			}
		}
	}
	status := a.status
	var challs []map[string]interface{}
	for _, cid := range a.challenges {
		c := s.challenges[cid]
		if status == "valid" && c.status == "processing" {
			c.status = "valid"
		}
		entry := map[string]interface{}{
			"type":   c.typ,
			"url":    c.url,
			"token":  c.token,
			"status": c.status,
		}
		if status == "invalid" && c.status != "valid" {
			c.status = "invalid"
			entry["status"] = "invalid"
			entry["error"] = map[string]interface{}{
				"type":   "urn:ietf:params:acme:error:incorrectResponse",
				"detail": s.authzInvalidDetail(),
				"status": 403,
			}
		}
		challs = append(challs, entry)
	}
	s.mu.Unlock()

	s.issueNonce(w)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"identifier": a.identifier,
		"challenges": challs,
		"wildcard":   a.wildcard,
	})
}

func (s *Server) authzInvalidDetail() string {
	if s.AuthzInvalidDetail != "" {
		return s.AuthzInvalidDetail
	}
	return "dns lookup failed"
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	_, _, _, ok := s.verifyJWS(w, r)
	if !ok {
		return
	}
	challURL := s.srv.URL + r.URL.Path
	s.mu.Lock()
	c := s.challenges[challURL]
	if c != nil && c.status == "pending" {
		c.status = "processing"
	}
	var body map[string]interface{}
	if c != nil {
		body = map[string]interface{}{
			"type":   c.typ,
			"url":    c.url,
			"token":  c.token,
			"status": c.status,
		}
	}
	s.mu.Unlock()
	if c == nil {
		s.issueNonce(w)
		s.problem(w, http.StatusNotFound, "", "no such challenge")
		return
	}
	s.issueNonce(w)
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	payload, _, _, ok := s.verifyJWS(w, r)
	if !ok {
		return
	}
	orderID := s.srv.URL + r.URL.Path
	s.mu.Lock()
	orderKey := strings.Replace(orderID, "/finalize/", "/order/", 1)
	o := s.orders[orderKey]
	s.mu.Unlock()
	if o == nil {
		s.issueNonce(w)
		s.problem(w, http.StatusNotFound, "", "no such order")
		return
	}
	if s.orderStatus(o) != "ready" {
		s.issueNonce(w)
		s.problem(w, http.StatusForbidden, "urn:ietf:params:acme:error:orderNotReady", "order is not ready for finalization")
		return
	}

	var req struct {
		CSR string `json:"csr"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "malformed finalize payload: %v", err)
		return
	}
	der, err := base64.RawURLEncoding.DecodeString(req.CSR)
	if err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "malformed CSR encoding: %v", err)
		return
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "unparseable CSR: %v", err)
		return
	}

	leafTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(int64(len(s.certs) + 1)),
		Subject:               pkix.Name{CommonName: csr.Subject.CommonName},
		DNSNames:              csr.DNSNames,
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, s.rootCert, csr.PublicKey, s.rootKey)
	if err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusInternalServerError, "", "issuing certificate: %v", err)
		return
	}

	s.mu.Lock()
	certID := s.id()
	chain := append(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER}),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.rootDER})...)
	s.certs[certID] = chain
	o.status = "valid"
	o.certID = certID
	s.mu.Unlock()

	s.issueNonce(w)
	s.writeJSON(w, http.StatusOK, s.orderBody(o))
}

func (s *Server) handleCert(w http.ResponseWriter, r *http.Request) {
	_, _, _, ok := s.verifyJWS(w, r)
	if !ok {
		return
	}
	certID := strings.TrimPrefix(r.URL.Path, "/cert/")
	s.mu.Lock()
	chain := s.certs[certID]
	s.mu.Unlock()
	if chain == nil {
		s.issueNonce(w)
		s.problem(w, http.StatusNotFound, "", "no such certificate")
		return
	}
	s.issueNonce(w)
	w.Header().Set("Content-Type", acme.CertificateContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(chain)
}

func (s *Server) handleKeyChange(w http.ResponseWriter, r *http.Request) {
	outerPayload, outerHdr, outerAcct, ok := s.verifyJWS(w, r)
	if !ok {
		return
	}
	if outerAcct == nil {
		s.issueNonce(w)
		s.problem(w, http.StatusUnauthorized, acme.ProblemUnauthorized, "keyChange outer JWS has no known account")
		return
	}

	var innerEnv jwsEnvelope
	if err := json.Unmarshal(outerPayload, &innerEnv); err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "malformed inner JWS: %v", err)
		return
	}
	innerProtected, err := base64.RawURLEncoding.DecodeString(innerEnv.Protected)
	if err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "malformed inner protected header: %v", err)
		return
	}
	var innerHdr protectedHeader
	if err := json.Unmarshal(innerProtected, &innerHdr); err != nil || innerHdr.JWK == nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "inner JWS must embed jwk")
		return
	}
	innerFull, err := jose.ParseSigned(fullSerialize(innerEnv), []jose.SignatureAlgorithm{jose.RS256, jose.ES256})
	if err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "unparseable inner JWS: %v", err)
		return
	}
	innerPayload, err := innerFull.Verify(innerHdr.JWK.Key)
	if err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusUnauthorized, acme.ProblemUnauthorized, "inner JWS signature invalid: %v", err)
		return
	}

	var innerReq struct {
		Account string          `json:"account"`
		OldKey  jose.JSONWebKey `json:"oldKey"`
	}
	if err := json.Unmarshal(innerPayload, &innerReq); err != nil {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "", "malformed rollover payload: %v", err)
		return
	}
	if innerReq.Account != outerAcct.id || outerHdr.KID != outerAcct.id {
		s.issueNonce(w)
		s.problem(w, http.StatusBadRequest, "urn:ietf:params:acme:error:malformed", "rollover account mismatch")
		return
	}

	newThumbBytes, _ := innerHdr.JWK.Thumbprint(crypto.SHA256)
	newThumb := base64.RawURLEncoding.EncodeToString(newThumbBytes)

	s.mu.Lock()
	delete(s.accountsByJWK, outerAcct.thumb)
	outerAcct.jwk = *innerHdr.JWK
	outerAcct.thumb = newThumb
	s.accountsByJWK[newThumb] = outerAcct
	s.mu.Unlock()

	s.issueNonce(w)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) problem(w http.ResponseWriter, status int, problemType string, format string, args ...interface{}) {
	if problemType == "" {
		problemType = "about:blank"
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(acme.Problem{
		Type:   problemType,
		Detail: fmt.Sprintf(format, args...),
		Status: status,
	})
}
