package client

import (
	"github.com/acmecore/acmeclient/acme"
)

// checkStatus returns a *acme.ProtocolError built from resp's body if
// resp's status is not one of want; otherwise it returns nil.
func checkStatus(url string, resp *ResponseCtx, want ...int) error {
	for _, code := range want {
		if resp.Response.StatusCode == code {
			return nil
		}
	}
	problem := acme.ParseProblem(resp.Response.StatusCode, resp.RespBody)
	return &acme.ProtocolError{URL: url, Problem: problem}
}
