package client

import (
	"context"
	"encoding/json"
	"log"

	"github.com/acmecore/acmeclient/acme"
)

func (c *Client) getDirectory(ctx context.Context) (map[string]any, error) {
	resp, err := c.net.GetURL(ctx, c.DirectoryURL.String())
	if err != nil {
		return nil, err
	}

	var directory map[string]any
	if err := json.Unmarshal(resp.RespBody, &directory); err != nil {
		return nil, err
	}
	return directory, nil
}

// Directory returns the cached ACME directory object, fetching it first if
// necessary.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
func (c *Client) Directory() (map[string]any, error) {
	c.dirMu.RLock()
	dir := c.directory
	c.dirMu.RUnlock()
	if dir != nil {
		return dir, nil
	}
	if err := c.UpdateDirectory(); err != nil {
		return nil, err
	}
	c.dirMu.RLock()
	defer c.dirMu.RUnlock()
	return c.directory, nil
}

// UpdateDirectory re-fetches the ACME server's directory object and
// refreshes the Client's cache.
func (c *Client) UpdateDirectory() error {
	newDir, err := c.getDirectory(context.Background())
	if err != nil {
		return err
	}
	c.dirMu.Lock()
	c.directory = newDir
	c.dirMu.Unlock()
	log.Printf("client: updated directory")
	return nil
}

// GetEndpointURL returns the URL the directory advertises for the named
// resource (e.g. acme.NewAccount), and whether it was present.
func (c *Client) GetEndpointURL(name acme.Resource) (string, bool) {
	dir, err := c.Directory()
	if err != nil {
		return "", false
	}
	rawURL, ok := dir[string(name)]
	if !ok {
		return "", false
	}
	v, ok := rawURL.(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
