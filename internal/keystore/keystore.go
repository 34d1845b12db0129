// Package keystore abstracts the external credential service that holds
// signing material for accounts. The core only needs to fetch a credential
// by identifier and compare its derived address; key generation, rotation,
// and storage are the collaborator's business.
package keystore

import (
	"context"
	"errors"
)

// ErrNotFound means no credential exists for the identifier.
var ErrNotFound = errors.New("keystore: credential not found")

// Credential is signing-capable material whose derived address identifies
// the account it controls. The settlement adapter consumes it opaquely.
type Credential interface {
	// Address returns the canonical address derived from the credential.
	Address() string
}

// Keystore retrieves credentials. The identifier may be a legacy alias or
// the canonical address; the collaborator owns the naming scheme.
type Keystore interface {
	RetrieveCredential(ctx context.Context, identifier string) (Credential, error)
}
