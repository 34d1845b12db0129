// Package settle abstracts the external settlement network that finalizes
// transfers. The internal ledger is an accounting layer over it; every call
// here is network-bound and may fail transiently.
package settle

import (
	"context"

	"github.com/borglife/wealthd/internal/keystore"
)

// SubmitResult carries the external references for a finalized transfer.
type SubmitResult struct {
	TxRef    string `json:"tx_ref"`
	BlockRef string `json:"block_ref"`
}

// Adapter is the settlement-network collaborator.
type Adapter interface {
	// ExternalBalance returns the network's view of an address, in minor
	// units.
	ExternalBalance(ctx context.Context, address string) (int64, error)
	// EstimateFee returns the network fee for a transfer, in minor units.
	EstimateFee(ctx context.Context, from, to string, amount int64) (int64, error)
	// SubmitTransfer executes a signed transfer and blocks until the
	// network confirms or the context expires.
	SubmitTransfer(ctx context.Context, from keystore.Credential, to string, amount int64) (SubmitResult, error)
	// HealthCheck reports whether the network endpoint is reachable.
	HealthCheck(ctx context.Context) error
}
