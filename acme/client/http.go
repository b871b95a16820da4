package client

import (
	"context"
	"encoding/json"

	"github.com/acmecore/acmeclient/acme"
	acmenet "github.com/acmecore/acmeclient/net"
)

// HTTPOptions controls what GetURL/PostURL log about a response.
type HTTPOptions struct {
	PrintHeaders  bool
	PrintStatus   bool
	PrintResponse bool
}

// ResponseCtx is the result of a Get/Post/PostAsGet call.
type ResponseCtx = acmenet.NetResponse

var defaultHTTPOptions = &HTTPOptions{}

// GetURL issues a GET request to url and harvests any Replay-Nonce header
// into the nonce pool.
func (c *Client) GetURL(url string) (*ResponseCtx, error) {
	resp, err := c.net.GetURL(context.Background(), url)
	return c.handleResponse(resp, err, defaultHTTPOptions)
}

// PostURL POSTs a serialized JWS body to url and harvests any
// Replay-Nonce header into the nonce pool.
func (c *Client) PostURL(url string, body []byte) (*ResponseCtx, error) {
	resp, err := c.net.PostURL(context.Background(), url, body)
	return c.handleResponse(resp, err, defaultHTTPOptions)
}

// PostAsGetURL performs a POST-as-GET request (an empty-payload signed
// POST) to read a resource, per RFC 8555 section 6.3.
func (c *Client) PostAsGetURL(url string) (*ResponseCtx, error) {
	signResult, err := c.Sign(url, []byte(""), nil)
	if err != nil {
		return nil, err
	}
	return c.PostURL(url, signResult.SerializedJWS)
}

// signAndPost signs data for url with opts, POSTs it, and transparently
// retries the same request exactly once if the server rejects it with
// badNonce: handleResponse has already harvested the fresh Replay-Nonce
// the rejection carries, so resigning with opts picks it up from the
// pool. A second consecutive badNonce is returned to the caller as-is,
// per spec.md section 4.2.
func (c *Client) signAndPost(url string, data []byte, opts *SigningOptions) (*ResponseCtx, error) {
	for attempt := 0; ; attempt++ {
		signResult, err := c.Sign(url, data, opts)
		if err != nil {
			return nil, err
		}
		resp, err := c.PostURL(url, signResult.SerializedJWS)
		if err != nil {
			return nil, err
		}
		if attempt == 0 && isBadNonceResponse(resp) {
			continue
		}
		return resp, nil
	}
}

func isBadNonceResponse(resp *ResponseCtx) bool {
	if resp.Response.StatusCode < 400 {
		return false
	}
	problem := acme.ParseProblem(resp.Response.StatusCode, resp.RespBody)
	return problem.Type == acme.ProblemBadNonce
}

func (c *Client) handleResponse(resp *ResponseCtx, err error, opts *HTTPOptions) (*ResponseCtx, error) {
	if err != nil {
		return nil, err
	}
	if nonce := resp.Response.Header.Get(acme.ReplayNonceHeader); nonce != "" {
		c.pushNonce(nonce)
	}
	c.printHTTPResponse(resp, opts)
	return resp, nil
}

func (c *Client) printHTTPResponse(resp *ResponseCtx, opts *HTTPOptions) {
	if opts == nil {
		opts = defaultHTTPOptions
	}
	if opts.PrintStatus {
		c.Printf("Response Status: %s\n", resp.Response.Status)
	}
	if opts.PrintHeaders {
		headerBytes, _ := json.MarshalIndent(&resp.Response.Header, "", "  ")
		c.Printf("Response Headers:\n%s\n", string(headerBytes))
	}
	if opts.PrintResponse {
		c.Printf("Response body:\n%s\n", string(resp.RespBody))
	}
}
