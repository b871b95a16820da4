// Package resources provides the ACME protocol resource types (Account,
// Order, Authorization, Challenge) and their on-disk serialization.
package resources

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/acmecore/acmeclient/acme/keys"
)

// AccountStatus is the server-reported lifecycle state of an Account.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.2
type AccountStatus string

const (
	AccountValid       AccountStatus = "valid"
	AccountDeactivated AccountStatus = "deactivated"
	AccountRevoked     AccountStatus = "revoked"
)

// Account holds an ACME Account resource. An Account with an empty ID has
// not yet been created server-side with CreateAccount.
//
// Exactly one Account exists per (directory, key) pair on the server; the
// client may either hold the assigned ID or rediscover it by signing
// a newAccount request with onlyReturnExisting semantics (see
// client.Client.FindAccount).
type Account struct {
	// The server-assigned Account URL. Used as the JWS "kid" header once
	// non-empty.
	ID string `json:"id"`
	// Status is the server-reported account lifecycle state.
	Status AccountStatus `json:"status,omitempty"`
	// Contact is nil or a slice of "mailto:" URIs.
	Contact []string `json:"contact,omitempty"`
	// Signer is the account keypair. Defaults to RSA 2048 (see keys.NewSigner).
	Signer crypto.Signer `json:"-"`
	// Orders is the set of Order URLs this Account has created.
	Orders []string `json:"-"`

	jsonPath string
}

func (a Account) String() string { return a.ID }

func (a Account) Path() string { return a.jsonPath }

// OrderURL returns the ith Order URL owned by the Account.
func (a *Account) OrderURL(i int) (string, error) {
	if len(a.Orders) == 0 {
		return "", errors.New("account has no orders")
	}
	if i < 0 || i >= len(a.Orders) {
		return "", fmt.Errorf("order index must be 0 <= i < %d", len(a.Orders))
	}
	return a.Orders[i], nil
}

// NewAccount builds an in-memory Account. It is not registered with the
// ACME server until client.Client.CreateAccount is called.
//
// emails is zero or more bare email addresses to use as Contact. If
// privKey is nil a fresh RSA 2048 key is generated (the spec's default;
// see keys.NewSigner for alternatives).
func NewAccount(emails []string, privKey crypto.Signer) (*Account, error) {
	var contacts []string
	for _, e := range emails {
		if e == "" {
			continue
		}
		contacts = append(contacts, fmt.Sprintf("mailto:%s", e))
	}

	if privKey == nil {
		randKey, err := keys.NewSigner(keys.RSA)
		if err != nil {
			return nil, err
		}
		privKey = randKey
	}

	return &Account{
		Contact: contacts,
		Signer:  privKey,
	}, nil
}

type rawAccount struct {
	ID         string
	Status     AccountStatus
	Contact    []string
	Orders     []string
	KeyType    string
	PrivateKey []byte
}

func (a *Account) save() ([]byte, error) {
	keyBytes, keyType, err := keys.MarshalSigner(a.Signer)
	if err != nil {
		return nil, err
	}

	raw := rawAccount{
		ID:         a.ID,
		Status:     a.Status,
		Contact:    a.Contact,
		Orders:     a.Orders,
		KeyType:    keyType,
		PrivateKey: keyBytes,
	}
	return json.MarshalIndent(raw, "", "  ")
}

// SaveAccount persists account to path (mode 0600 — the file contains
// a private key).
func SaveAccount(path string, account *Account) error {
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	frozen, err := account.save()
	if err != nil {
		return err
	}
	account.jsonPath = path
	return os.WriteFile(path, frozen, 0600)
}

func (a *Account) restore(frozen []byte) error {
	var raw rawAccount
	if err := json.Unmarshal(frozen, &raw); err != nil {
		return err
	}

	privKey, err := keys.UnmarshalSigner(raw.PrivateKey, raw.KeyType)
	if err != nil {
		return err
	}

	a.ID = raw.ID
	a.Status = raw.Status
	a.Contact = raw.Contact
	a.Orders = raw.Orders
	a.Signer = privKey
	return nil
}

// RestoreAccount loads an Account previously written by SaveAccount.
func RestoreAccount(path string) (*Account, error) {
	acct := &Account{}
	frozen, err := os.ReadFile(path)
	if err != nil {
		return acct, err
	}
	err = acct.restore(frozen)
	acct.jsonPath = path
	return acct, err
}
