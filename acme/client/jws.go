package client

import (
	"crypto"
	"errors"
	"fmt"

	"github.com/acmecore/acmeclient/acme/keys"

	jose "github.com/go-jose/go-jose/v4"
)

// SigningOptions controls how Sign authenticates a request.
type SigningOptions struct {
	// EmbedKey, if true, embeds the signer's public key as a JWK instead
	// of a "kid" header. Required for newAccount and key-rollover inner
	// JWS; mutually exclusive with KeyID.
	EmbedKey bool
	// KeyID, if non-empty, is used as the JWS "kid" header. If empty and
	// EmbedKey is false, the Client's ActiveAccount ID is used.
	KeyID string
	// Signer signs the JWS. Defaults to the ActiveAccount's Signer.
	Signer crypto.Signer
	// NonceSource supplies the Replay-Nonce header value. Defaults to
	// the Client itself.
	NonceSource jose.NonceSource
}

func (opts *SigningOptions) validate() error {
	if opts.KeyID != "" && opts.EmbedKey {
		return errors.New("client: SigningOptions cannot specify both KeyID and EmbedKey")
	}
	if opts.KeyID == "" && !opts.EmbedKey {
		return errors.New("client: SigningOptions must specify a KeyID or EmbedKey")
	}
	if opts.NonceSource == nil {
		return errors.New("client: SigningOptions must specify a NonceSource")
	}
	if opts.Signer == nil {
		return errors.New("client: SigningOptions must specify a Signer")
	}
	return nil
}

// SignResult holds the input and output of a Sign call.
type SignResult struct {
	InputURL      string
	InputData     []byte
	JWS           *jose.JSONWebSignature
	SerializedJWS []byte
}

// Sign produces a flattened-JSON JWS over data with "url" set to url in
// the protected header, per RFC 8555 section 6.2. If opts is nil, or
// leaves Signer/KeyID unset, the ActiveAccount supplies the default.
func (c *Client) Sign(url string, data []byte, opts *SigningOptions) (*SignResult, error) {
	if opts == nil {
		opts = &SigningOptions{}
	}

	if opts.Signer == nil {
		if c.ActiveAccount == nil {
			return nil, errors.New("client: no Signer in SigningOptions and no ActiveAccount")
		}
		opts.Signer = c.ActiveAccount.Signer
	}

	if !opts.EmbedKey && opts.KeyID == "" {
		if c.ActiveAccount == nil {
			return nil, errors.New("client: SigningOptions needs a KeyID or EmbedKey and there is no ActiveAccount")
		}
		opts.KeyID = c.ActiveAccount.ID
	}

	if opts.NonceSource == nil {
		opts.NonceSource = c
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}

	if c.Output.PrintSignedData {
		c.Printf("Signing:\n%s\n", data)
	}

	cp := c.Crypto
	if cp == nil {
		cp = keys.DefaultProvider{}
	}

	var signResult *SignResult
	var err error
	if opts.EmbedKey {
		signResult, err = signEmbedded(cp, url, data, *opts)
	} else {
		signResult, err = signKeyID(cp, url, data, *opts)
	}

	if err == nil && c.Output.PrintJWS {
		c.Printf("JWS:\n%s\n", string(signResult.SerializedJWS))
	}
	return signResult, err
}

func signEmbedded(cp keys.CryptoProvider, url string, data []byte, opts SigningOptions) (*SignResult, error) {
	signingKey := cp.SigningKeyForSigner(opts.Signer, "")

	signer, err := jose.NewSigner(signingKey, &jose.SignerOptions{
		NonceSource: opts.NonceSource,
		EmbedJWK:    true,
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": url,
		},
	})
	if err != nil {
		return nil, err
	}
	return sign(signer, url, data)
}

func signKeyID(cp keys.CryptoProvider, url string, data []byte, opts SigningOptions) (*SignResult, error) {
	if opts.KeyID == "" {
		return nil, fmt.Errorf("client: signKeyID: empty KeyID")
	}

	signingKey := cp.SigningKeyForSigner(opts.Signer, opts.KeyID)

	signer, err := jose.NewSigner(signingKey, &jose.SignerOptions{
		NonceSource: opts.NonceSource,
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": url,
		},
	})
	if err != nil {
		return nil, err
	}
	return sign(signer, url, data)
}

func sign(signer jose.Signer, url string, data []byte) (*SignResult, error) {
	signed, err := signer.Sign(data)
	if err != nil {
		return nil, err
	}

	serialized := []byte(signed.FullSerialize())

	parsedJWS, err := jose.ParseSigned(string(serialized), []jose.SignatureAlgorithm{jose.RS256, jose.ES256})
	if err != nil {
		return nil, err
	}

	return &SignResult{
		InputURL:      url,
		InputData:     data,
		JWS:           parsedJWS,
		SerializedJWS: serialized,
	}, nil
}
