package acmeorch

import "crypto"

// UpdateAccountKey performs ACME key rollover (RFC 8555 section 7.3.5),
// replacing the orchestrator's account key with newKey. It is a thin
// wrapper over client.Client.Rollover, named to match spec.md section 8
// scenario S7's updateAccountKey.
//
// The Client's nonce-pool mutex guards only nonce pop/push and the pool
// reset after the swap; it does not serialize signed requests. Rollover
// neither waits for nor blocks signed requests issued concurrently on the
// same Client, so the account key swap is not synchronized with them.
func (o *Orchestrator) UpdateAccountKey(newKey crypto.Signer) error {
	return o.Client.Rollover(newKey)
}
