// Package net provides the HTTP transport used to talk to an ACME server:
// request/response logging, User-Agent tagging, optional custom trust
// roots, and automatic retry of transient transport failures.
package net

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"os"
	"runtime"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

const (
	version       = "0.0.1"
	userAgentBase = "acmeclient"
	locale        = "en-us"
)

// HTTPDoer is the capability boundary between ACMENet and whatever
// executes its requests. *retryablehttp.Client satisfies it; tests and
// alternative transports (e.g. a connection-pooled or proxy-aware client)
// can substitute their own implementation via Config.Doer.
type HTTPDoer interface {
	Do(*retryablehttp.Request) (*http.Response, error)
}

// Config controls the transport's trust roots and retry behavior.
type Config struct {
	// CABundlePath is an optional file path to one or more PEM encoded CA
	// certificates to trust in addition to the system roots. Empty means
	// use the system roots unmodified.
	CABundlePath string
	// RetryMax is the maximum number of transport-level retries for
	// connection failures and 5xx responses. Zero uses the package
	// default (4).
	RetryMax int
	// Doer, if set, replaces the default *retryablehttp.Client entirely;
	// CABundlePath and RetryMax are ignored in that case. Picked at
	// construction time, per spec.md section 9's "single capability
	// interface, two implementations" adapter pattern.
	Doer HTTPDoer
}

// ACMENet wraps a retrying HTTP client configured for talking to an ACME
// server.
type ACMENet struct {
	httpClient HTTPDoer
}

// New builds an ACMENet from conf. An empty Config is valid and uses the
// system trust roots with default retry settings.
func New(conf Config) (*ACMENet, error) {
	if conf.Doer != nil {
		return &ACMENet{httpClient: conf.Doer}, nil
	}

	var pool *x509.CertPool
	if conf.CABundlePath != "" {
		pemBundle, err := os.ReadFile(conf.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("net: reading CA bundle: %w", err)
		}
		pool = x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBundle) {
			return nil, fmt.Errorf("net: no certificates parsed from %q", conf.CABundlePath)
		}
	}

	retryMax := conf.RetryMax
	if retryMax == 0 {
		retryMax = 4
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: pool},
	}

	return &ACMENet{httpClient: rc}, nil
}

// NetResponse is the outcome of an HTTP round trip: the parsed response,
// its fully-read body, and request/response dumps for debugging.
type NetResponse struct {
	Response *http.Response
	RespBody []byte
	RespDump []byte
	ReqDump  []byte
}

func (c *ACMENet) userAgent() string {
	return fmt.Sprintf("%s %s (%s; %s)", userAgentBase, version, runtime.GOOS, runtime.GOARCH)
}

// Do executes req, retrying transient failures, and fully reads the
// response body.
func (c *ACMENet) Do(ctx context.Context, req *http.Request) (*NetResponse, error) {
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept-Language", locale)

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		reqDump = nil
	}

	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("net: %w", err)
	}

	resp, err := c.httpClient.Do(rreq)
	if err != nil {
		return nil, fmt.Errorf("net: %w", err)
	}
	defer resp.Body.Close()

	respDump, err := httputil.DumpResponse(resp, false)
	if err != nil {
		respDump = nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("net: reading response body: %w", err)
	}

	return &NetResponse{
		Response: resp,
		RespBody: respBody,
		RespDump: respDump,
		ReqDump:  reqDump,
	}, nil
}

// HeadURL issues an HTTP HEAD request to url.
func (c *ACMENet) HeadURL(ctx context.Context, url string) (*NetResponse, error) {
	log.Printf("net: HEAD %s", url)
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// PostRequest builds a POST request to url with the given JWS body.
func (c *ACMENet) PostRequest(url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/jose+json")
	return req, nil
}

// PostURL POSTs body (a serialized JWS) to url.
func (c *ACMENet) PostURL(ctx context.Context, url string, body []byte) (*NetResponse, error) {
	log.Printf("net: POST %s", url)
	req, err := c.PostRequest(url, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// GetRequest builds a GET request to url.
func (c *ACMENet) GetRequest(url string) (*http.Request, error) {
	return http.NewRequest(http.MethodGet, url, nil)
}

// GetURL GETs url.
func (c *ACMENet) GetURL(ctx context.Context, url string) (*NetResponse, error) {
	log.Printf("net: GET %s", url)
	req, err := c.GetRequest(url)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}
