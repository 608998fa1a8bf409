package ports

import (
	"context"

	"github.com/albert-vybestein/neobank/core"
)

// SignatureInput is everything a verification strategy may look at
type SignatureInput struct {
	Message   string
	Signature string
	Signer    string
	Account   string
}

// SignatureVerifier checks a challenge signature with the given strategy
type SignatureVerifier interface {
	Verify(ctx context.Context, method core.AuthMethod, in SignatureInput) error
}

// OwnershipChecker answers whether signer currently controls account
type OwnershipChecker interface {
	IsOwner(ctx context.Context, signer, account string) (bool, error)
}
