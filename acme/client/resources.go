package client

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/keys"
	"github.com/acmecore/acmeclient/acme/resources"

	jose "github.com/go-jose/go-jose/v4"
)

// CreateAccount registers acct with the ACME server. On success acct.ID is
// populated from the response's Location header.
//
// This always agrees to the server's terms of service
// (termsOfServiceAgreed: true); callers that need review-before-agree
// semantics must implement that at a higher layer.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3
func (c *Client) CreateAccount(acct *resources.Account) error {
	if acct.ID != "" {
		return fmt.Errorf("client: CreateAccount: account already has ID %q", acct.ID)
	}

	req := struct {
		Contact               []string `json:"contact,omitempty"`
		TermsOfServiceAgreed  bool     `json:"termsOfServiceAgreed"`
		OnlyReturnExisting    bool     `json:"onlyReturnExisting,omitempty"`
	}{
		Contact:              acct.Contact,
		TermsOfServiceAgreed: true,
	}
	return c.submitAccount(acct, req)
}

// FindAccount looks up the server-assigned Account ID for acct.Signer
// using onlyReturnExisting, without creating a new account. See RFC 8555
// section 7.3.1.
func (c *Client) FindAccount(acct *resources.Account) error {
	if acct.ID != "" {
		return fmt.Errorf("client: FindAccount: account already has ID %q", acct.ID)
	}

	req := struct {
		OnlyReturnExisting bool `json:"onlyReturnExisting"`
	}{
		OnlyReturnExisting: true,
	}
	return c.submitAccount(acct, req)
}

func (c *Client) submitAccount(acct *resources.Account, req interface{}) error {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return err
	}

	newAcctURL, ok := c.GetEndpointURL(acme.NewAccount)
	if !ok {
		return fmt.Errorf("client: ACME server missing %q endpoint in directory", acme.NewAccount)
	}

	resp, err := c.signAndPost(newAcctURL, reqBody, &SigningOptions{
		EmbedKey: true,
		Signer:   acct.Signer,
	})
	if err != nil {
		return fmt.Errorf("client: CreateAccount: %w", err)
	}
	if err := checkStatus(newAcctURL, resp, http.StatusCreated, http.StatusOK); err != nil {
		return err
	}

	locHeader := resp.Response.Header.Get(acme.LocationHeader)
	if locHeader == "" {
		return fmt.Errorf("client: CreateAccount: server response missing Location header")
	}
	acct.ID = locHeader

	if err := json.Unmarshal(resp.RespBody, acct); err != nil {
		return fmt.Errorf("client: CreateAccount: decoding account body: %w", err)
	}
	acct.ID = locHeader

	log.Printf("client: account %q", acct.ID)
	return nil
}

// UpdateAccount submits a partial update (typically Contact) to an
// existing account.
func (c *Client) UpdateAccount(acct *resources.Account) error {
	if acct.ID == "" {
		return errors.New("client: UpdateAccount: account has no ID")
	}

	req := struct {
		Contact []string `json:"contact,omitempty"`
	}{Contact: acct.Contact}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := c.signAndPost(acct.ID, reqBody, &SigningOptions{KeyID: acct.ID, Signer: acct.Signer})
	if err != nil {
		return err
	}
	if err := checkStatus(acct.ID, resp, http.StatusOK); err != nil {
		return err
	}
	return json.Unmarshal(resp.RespBody, acct)
}

// DeactivateAccount requests that the server deactivate acct, per RFC 8555
// section 7.3.6.
func (c *Client) DeactivateAccount(acct *resources.Account) error {
	if acct.ID == "" {
		return errors.New("client: DeactivateAccount: account has no ID")
	}
	req := struct {
		Status resources.AccountStatus `json:"status"`
	}{Status: resources.AccountDeactivated}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := c.signAndPost(acct.ID, reqBody, &SigningOptions{KeyID: acct.ID, Signer: acct.Signer})
	if err != nil {
		return err
	}
	if err := checkStatus(acct.ID, resp, http.StatusOK); err != nil {
		return err
	}
	return json.Unmarshal(resp.RespBody, acct)
}

// Rollover performs an ACME key-change: the account switches from its
// current signer to newKey. See RFC 8555 section 7.3.5. The inner JWS is
// signed by newKey with the public key embedded; the outer JWS is signed
// by the account's current key with kid, per the nested-JWS construction
// the spec requires.
func (c *Client) Rollover(newKey crypto.Signer) error {
	acctID := c.ActiveAccountID()
	if acctID == "" {
		return errors.New("client: Rollover: no ActiveAccount")
	}
	account := c.ActiveAccount

	rolloverRequest := struct {
		Account string          `json:"account"`
		OldKey  jose.JSONWebKey `json:"oldKey"`
	}{
		Account: account.ID,
		OldKey:  keys.JWKForSigner(account.Signer),
	}

	rolloverJSON, err := json.Marshal(&rolloverRequest)
	if err != nil {
		return fmt.Errorf("client: Rollover: marshaling inner payload: %w", err)
	}

	targetURL, ok := c.GetEndpointURL(acme.KeyChange)
	if !ok {
		return fmt.Errorf("client: ACME server missing %q endpoint in directory", acme.KeyChange)
	}

	innerResult, err := c.Sign(targetURL, rolloverJSON, &SigningOptions{Signer: newKey, EmbedKey: true})
	if err != nil {
		return fmt.Errorf("client: Rollover: signing inner JWS: %w", err)
	}

	resp, err := c.signAndPost(targetURL, innerResult.SerializedJWS, &SigningOptions{KeyID: acctID, Signer: account.Signer})
	if err != nil {
		return fmt.Errorf("client: Rollover: %w", err)
	}
	if err := checkStatus(targetURL, resp, http.StatusOK); err != nil {
		return err
	}

	account.Signer = newKey
	c.nonceMu.Lock()
	c.nonces = nil
	c.nonceMu.Unlock()
	log.Printf("client: rollover for %q completed", acctID)
	return nil
}

// CreateOrder submits a newOrder request for order.Identifiers. On success
// order is populated in place with its ID, Status, Authorizations and
// Finalize URL.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4
func (c *Client) CreateOrder(order *resources.Order) error {
	if c.ActiveAccountID() == "" {
		return errors.New("client: CreateOrder: no ActiveAccount")
	}

	req := struct {
		Identifiers []acme.Identifier `json:"identifiers"`
	}{Identifiers: order.Identifiers}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return err
	}

	newOrderURL, ok := c.GetEndpointURL(acme.NewOrder)
	if !ok {
		return fmt.Errorf("client: ACME server missing %q endpoint in directory", acme.NewOrder)
	}

	resp, err := c.signAndPost(newOrderURL, reqBody, nil)
	if err != nil {
		return fmt.Errorf("client: CreateOrder: %w", err)
	}
	if err := checkStatus(newOrderURL, resp, http.StatusCreated); err != nil {
		return err
	}

	locHeader := resp.Response.Header.Get(acme.LocationHeader)
	if locHeader == "" {
		return errors.New("client: CreateOrder: server response missing Location header")
	}

	if err := json.Unmarshal(resp.RespBody, order); err != nil {
		return fmt.Errorf("client: CreateOrder: decoding order body: %w", err)
	}
	order.ID = locHeader
	order.Account = c.ActiveAccount

	log.Printf("client: created order %q", order.ID)
	c.ActiveAccount.Orders = append(c.ActiveAccount.Orders, order.ID)
	return nil
}

func (c *Client) readResource(resourceURL string, out interface{}) error {
	var resp *ResponseCtx
	var err error
	if c.PostAsGet {
		resp, err = c.PostAsGetURL(resourceURL)
	} else {
		resp, err = c.GetURL(resourceURL)
	}
	if err != nil {
		return err
	}
	if err := checkStatus(resourceURL, resp, http.StatusOK); err != nil {
		return err
	}
	return json.Unmarshal(resp.RespBody, out)
}

// UpdateOrder refreshes order in place by (POST-as-)GETing order.ID.
func (c *Client) UpdateOrder(order *resources.Order) error {
	if order == nil || order.ID == "" {
		return errors.New("client: UpdateOrder: order must be non-nil with an ID")
	}
	return c.readResource(order.ID, order)
}

// UpdateAuthz refreshes authz in place by (POST-as-)GETing authz.ID.
func (c *Client) UpdateAuthz(authz *resources.Authorization) error {
	if authz == nil || authz.ID == "" {
		return errors.New("client: UpdateAuthz: authz must be non-nil with an ID")
	}
	return c.readResource(authz.ID, authz)
}

// DeactivateAuthz requests the server deactivate authz, per RFC 8555
// section 7.5.2.
func (c *Client) DeactivateAuthz(authz *resources.Authorization) error {
	if authz == nil || authz.ID == "" {
		return errors.New("client: DeactivateAuthz: authz must be non-nil with an ID")
	}

	req := struct {
		Status resources.AuthorizationStatus `json:"status"`
	}{Status: resources.AuthorizationDeactivated}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := c.signAndPost(authz.ID, reqBody, nil)
	if err != nil {
		return err
	}
	if err := checkStatus(authz.ID, resp, http.StatusOK); err != nil {
		return err
	}
	return json.Unmarshal(resp.RespBody, authz)
}

// UpdateChallenge refreshes chall in place by (POST-as-)GETing chall.URL.
func (c *Client) UpdateChallenge(chall *resources.Challenge) error {
	if chall == nil || chall.URL == "" {
		return errors.New("client: UpdateChallenge: chall must be non-nil with a URL")
	}
	return c.readResource(chall.URL, chall)
}

// CompleteChallenge POSTs an empty JSON object ("{}") to chall.URL,
// telling the server the client believes the challenge is ready for
// validation (RFC 8555 section 7.5.1). The caller must have already
// provisioned the challenge response (HTTP resource, DNS record, or TLS
// certificate) before calling this.
func (c *Client) CompleteChallenge(chall *resources.Challenge) error {
	if chall == nil || chall.URL == "" {
		return errors.New("client: CompleteChallenge: chall must be non-nil with a URL")
	}

	resp, err := c.signAndPost(chall.URL, []byte("{}"), nil)
	if err != nil {
		return err
	}
	if err := checkStatus(chall.URL, resp, http.StatusOK); err != nil {
		return err
	}
	return json.Unmarshal(resp.RespBody, chall)
}

// FinalizeOrder submits csrDER (raw ASN.1 DER, not PEM) to order.Finalize,
// per RFC 8555 section 7.4. On success order is refreshed in place; its
// Status typically transitions to "processing", requiring the caller to
// poll UpdateOrder until Status is "valid" or "invalid".
func (c *Client) FinalizeOrder(order *resources.Order, csrDER []byte) error {
	if order == nil || order.Finalize == "" {
		return errors.New("client: FinalizeOrder: order must be non-nil with a Finalize URL")
	}

	req := struct {
		CSR string `json:"csr"`
	}{CSR: b64URL(csrDER)}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := c.signAndPost(order.Finalize, reqBody, nil)
	if err != nil {
		return err
	}
	if err := checkStatus(order.Finalize, resp, http.StatusOK); err != nil {
		return err
	}
	return json.Unmarshal(resp.RespBody, order)
}

// DownloadCertificate fetches the PEM certificate chain from a valid
// Order's Certificate URL, per RFC 8555 section 7.4.2.
func (c *Client) DownloadCertificate(order *resources.Order) ([]byte, error) {
	if order == nil || order.Certificate == "" {
		return nil, errors.New("client: DownloadCertificate: order has no Certificate URL")
	}

	var resp *ResponseCtx
	var err error
	if c.PostAsGet {
		resp, err = c.PostAsGetURL(order.Certificate)
	} else {
		resp, err = c.GetURL(order.Certificate)
	}
	if err != nil {
		return nil, err
	}
	if err := checkStatus(order.Certificate, resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.RespBody, nil
}

// RevokeCert submits certDER for revocation, per RFC 8555 section 7.6.
// reason is an optional CRLReason code; pass -1 to omit it.
func (c *Client) RevokeCert(certDER []byte, reason int) error {
	revokeURL, ok := c.GetEndpointURL(acme.RevokeCert)
	if !ok {
		return fmt.Errorf("client: ACME server missing %q endpoint in directory", acme.RevokeCert)
	}

	req := struct {
		Certificate string `json:"certificate"`
		Reason      *int   `json:"reason,omitempty"`
	}{Certificate: b64URL(certDER)}
	if reason >= 0 {
		req.Reason = &reason
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := c.signAndPost(revokeURL, reqBody, nil)
	if err != nil {
		return err
	}
	return checkStatus(revokeURL, resp, http.StatusOK)
}

// OrderByIndex looks up the ActiveAccount's ith Order URL and fetches the
// current Order resource.
func (c *Client) OrderByIndex(index int) (*resources.Order, error) {
	if c.ActiveAccountID() == "" {
		return nil, errors.New("client: OrderByIndex: no ActiveAccount")
	}
	orderURL, err := c.ActiveAccount.OrderURL(index)
	if err != nil {
		return nil, err
	}
	order := &resources.Order{ID: orderURL}
	if err := c.UpdateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// AuthzByIdentifier fetches order's Authorizations and returns the first
// one matching identifier.
func (c *Client) AuthzByIdentifier(order *resources.Order, identifier string) (*resources.Authorization, error) {
	if order == nil {
		return nil, errors.New("client: AuthzByIdentifier: order was nil")
	}
	if len(order.Authorizations) == 0 {
		return nil, errors.New("client: AuthzByIdentifier: order has no authorizations")
	}
	for _, authzURL := range order.Authorizations {
		authz := &resources.Authorization{ID: authzURL}
		if err := c.UpdateAuthz(authz); err != nil {
			return nil, err
		}
		if authz.Identifier.Value == identifier {
			return authz, nil
		}
	}
	return nil, fmt.Errorf("client: AuthzByIdentifier: order %q has no authz for identifier %q", order.ID, identifier)
}
