// Package client provides a low-level ACME v2 (RFC 8555) client: directory
// discovery, nonce management, JWS signing, and the account/order/
// authorization/challenge/certificate operations. The orchestrator package
// builds the end-to-end issuance flow on top of this package.
package client

import (
	"crypto"
	"fmt"
	"log"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/acmecore/acmeclient/acme/keys"
	"github.com/acmecore/acmeclient/acme/resources"
	acmenet "github.com/acmecore/acmeclient/net"
)

// Client talks to a single ACME server on behalf of a single Account.
// The nonce pool and directory cache are each guarded by their own mutex
// (see nonce.go, directory.go), so requests may be issued concurrently.
// Rollover's account key swap is not synchronized with concurrent signed
// requests.
type Client struct {
	// DirectoryURL is the ACME server's directory endpoint.
	DirectoryURL *url.URL
	// ActiveAccount is used to authenticate requests with JWS. It may be
	// nil until CreateAccount or FindAccount populates it.
	ActiveAccount *resources.Account
	// Output controls what the client logs about requests and signing.
	Output OutputOptions
	// PostAsGet, when true, uses POST-as-GET instead of GET for reads of
	// Order/Authorization/Challenge/Certificate resources (RFC 8555
	// section 6.3).
	PostAsGet bool

	// Crypto is the CryptoProvider used to build JWS signing keys.
	// Defaults to keys.DefaultProvider{} if nil.
	Crypto keys.CryptoProvider

	net *acmenet.ACMENet

	dirMu     sync.RWMutex
	directory map[string]any

	nonceMu sync.Mutex
	nonces  []string
}

// OutputOptions controls what the Client logs.
type OutputOptions struct {
	PrintRequests   bool
	PrintResponses  bool
	PrintSignedData bool
	PrintJWS        bool
	PrintNonceUpdates bool
}

// ClientConfig configures a new Client. See spec.md section 6 for the
// full external configuration surface.
type ClientConfig struct {
	// DirectoryURL is the ACME server's directory endpoint. Required.
	DirectoryURL string
	// CACert is an optional path to PEM CA certificates trusted in
	// addition to the system roots.
	CACert string
	// ContactEmail is an optional contact address used when
	// auto-registering an account.
	ContactEmail string
	// AccountPath is an optional path to a previously saved Account
	// (see resources.SaveAccount/RestoreAccount). Takes precedence over
	// AutoRegister.
	AccountPath string
	// AccountKeyPEM is an optional PEM-encoded private key to use for a
	// newly auto-registered account, in place of a freshly generated one.
	AccountKeyPEM []byte
	// AutoRegister creates a new Account with the server if one could not
	// be restored from AccountPath.
	AutoRegister bool
	// POSTAsGET enables POST-as-GET reads (required by some servers, e.g.
	// Pebble in strict mode).
	POSTAsGET bool
	// BackoffMin/BackoffMax/BackoffAttempts are not read by NewClient and
	// are not passed on to the orchestrator; polling bounds are set with
	// acmeorch.Orchestrator's own BackoffMin/BackoffMax/BackoffAttempts
	// fields, whose zero values use that package's defaults.
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	BackoffAttempts int
	// InitialOutput sets the Client's initial OutputOptions.
	InitialOutput OutputOptions
	// Crypto overrides the CryptoProvider used to build JWS signing keys.
	// Nil uses keys.DefaultProvider{} (the pure-Go crypto/rsa backend).
	Crypto keys.CryptoProvider
	// Doer overrides the HTTP transport's retryablehttp.Client entirely.
	// Nil builds the package default (see net.New).
	Doer acmenet.HTTPDoer
}

func (conf *ClientConfig) normalize() error {
	conf.DirectoryURL = strings.TrimSpace(conf.DirectoryURL)
	conf.ContactEmail = strings.TrimSpace(conf.ContactEmail)
	conf.AccountPath = strings.TrimSpace(conf.AccountPath)

	if conf.DirectoryURL == "" {
		return fmt.Errorf("client: ClientConfig.DirectoryURL must not be empty")
	}
	if _, err := url.Parse(conf.DirectoryURL); err != nil {
		return fmt.Errorf("client: ClientConfig.DirectoryURL invalid: %w", err)
	}
	if conf.ContactEmail != "" {
		addr, err := mail.ParseAddress(conf.ContactEmail)
		if err != nil {
			return fmt.Errorf("client: ClientConfig.ContactEmail invalid: %w", err)
		}
		conf.ContactEmail = addr.Address
	}
	return nil
}

// NewClient builds a Client from config: it validates the config, sets up
// the HTTP transport, restores or auto-registers an Account if requested,
// and fetches the server's directory and an initial nonce.
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.normalize(); err != nil {
		return nil, err
	}

	transport, err := acmenet.New(acmenet.Config{CABundlePath: config.CACert, Doer: config.Doer})
	if err != nil {
		return nil, fmt.Errorf("client: building transport: %w", err)
	}

	cp := config.Crypto
	if cp == nil {
		cp = keys.DefaultProvider{}
	}

	dirURL, _ := url.Parse(config.DirectoryURL)

	c := &Client{
		DirectoryURL: dirURL,
		PostAsGet:    config.POSTAsGET,
		Output:       config.InitialOutput,
		Crypto:       cp,
		net:          transport,
	}

	if config.AccountPath != "" {
		log.Printf("client: restoring account from %q", config.AccountPath)
		acct, restoreErr := resources.RestoreAccount(config.AccountPath)
		if restoreErr != nil && !config.AutoRegister {
			return nil, fmt.Errorf("client: restoring account from %q: %w", config.AccountPath, restoreErr)
		}
		if restoreErr == nil {
			c.ActiveAccount = acct
			log.Printf("client: restored account %q", acct.ID)
		}
	}

	if config.AutoRegister && c.ActiveAccountID() == "" {
		privKey, keyErr := accountSigner(config.AccountKeyPEM)
		if keyErr != nil {
			return nil, keyErr
		}
		acct, err := resources.NewAccount([]string{config.ContactEmail}, privKey)
		if err != nil {
			return nil, err
		}
		c.ActiveAccount = acct
		if err := c.CreateAccount(acct); err != nil {
			return nil, err
		}
		if config.AccountPath != "" {
			if err := resources.SaveAccount(config.AccountPath, acct); err != nil {
				return nil, fmt.Errorf("client: saving account to %q: %w", config.AccountPath, err)
			}
		}
	}

	if err := c.UpdateDirectory(); err != nil {
		return nil, err
	}
	if err := c.RefreshNonce(); err != nil {
		return nil, err
	}

	if acctID := c.ActiveAccountID(); acctID != "" {
		log.Printf("client: active account %q", acctID)
	}

	return c, nil
}

func accountSigner(pemBytes []byte) (crypto.Signer, error) {
	if len(pemBytes) == 0 {
		return nil, nil
	}
	s, err := keys.SignerFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("client: parsing AccountKeyPEM: %w", err)
	}
	return s, nil
}

// Printf logs a formatted message through the standard logger.
func (c *Client) Printf(format string, vals ...interface{}) {
	log.Printf(format, vals...)
}

// ActiveAccountID returns the ActiveAccount's server-assigned ID, or "" if
// there is no ActiveAccount or it has not been created server-side.
func (c *Client) ActiveAccountID() string {
	if c.ActiveAccount == nil {
		return ""
	}
	return c.ActiveAccount.ID
}
