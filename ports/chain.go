package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SafeChain is the read-only view of the chain needed to reason about Safe accounts
type SafeChain interface {
	ChainID(ctx context.Context) (*big.Int, error)

	// Owners returns the current owner list of the Safe
	Owners(ctx context.Context, safe common.Address) ([]common.Address, error)

	// IsValidSignature asks the Safe to validate signature over hash (EIP-1271)
	IsValidSignature(ctx context.Context, safe common.Address, hash common.Hash, signature []byte) (bool, error)

	// CodeAt returns the deployed bytecode at addr, empty when nothing is deployed
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)

	// TransactionSucceeded reports whether the transaction was mined with a success status.
	// Unknown transactions report false without error.
	TransactionSucceeded(ctx context.Context, tx common.Hash) (bool, error)
}
