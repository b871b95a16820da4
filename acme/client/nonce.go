package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/acmecore/acmeclient/acme"
)

// Nonce satisfies go-jose's NonceSource interface. It pops a previously
// fetched nonce if the pool is non-empty, otherwise fetches one from the
// server's newNonce endpoint. Every ACME response carries a fresh
// Replay-Nonce header (see pushNonce), so under normal operation the pool
// rarely needs a live fetch.
func (c *Client) Nonce() (string, error) {
	if n, ok := c.popNonce(); ok {
		return n, nil
	}
	if err := c.RefreshNonce(); err != nil {
		return "", err
	}
	n, ok := c.popNonce()
	if !ok {
		return "", fmt.Errorf("client: nonce pool empty immediately after refresh")
	}
	return n, nil
}

func (c *Client) popNonce() (string, bool) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	if len(c.nonces) == 0 {
		return "", false
	}
	n := c.nonces[len(c.nonces)-1]
	c.nonces = c.nonces[:len(c.nonces)-1]
	return n, true
}

// pushNonce stores a nonce observed in a Replay-Nonce response header for
// later reuse, avoiding an extra HEAD newNonce round trip per signed
// request.
func (c *Client) pushNonce(nonce string) {
	if nonce == "" {
		return
	}
	c.nonceMu.Lock()
	c.nonces = append(c.nonces, nonce)
	c.nonceMu.Unlock()
}

// RefreshNonce fetches a new nonce from the ACME server's newNonce
// endpoint and adds it to the pool.
//
// See https://tools.ietf.org/html/rfc8555#section-7.2
func (c *Client) RefreshNonce() error {
	nonceURL, ok := c.GetEndpointURL(acme.NewNonce)
	if !ok {
		return fmt.Errorf("client: missing %q entry in ACME server directory", acme.NewNonce)
	}

	if c.Output.PrintNonceUpdates {
		c.Printf("Sending HTTP HEAD request to %q\n", nonceURL)
	}

	resp, err := c.net.HeadURL(context.Background(), nonceURL)
	if err != nil {
		return err
	}

	if resp.Response.StatusCode != http.StatusOK {
		return fmt.Errorf("client: %q returned HTTP status %d, expected %d",
			acme.NewNonce, resp.Response.StatusCode, http.StatusOK)
	}

	nonce := resp.Response.Header.Get(acme.ReplayNonceHeader)
	if nonce == "" {
		return fmt.Errorf("client: %q returned no %q header value", acme.NewNonce, acme.ReplayNonceHeader)
	}

	c.pushNonce(nonce)
	if c.Output.PrintNonceUpdates {
		c.Printf("Refreshed nonce pool with %q", nonce)
	}
	return nil
}
