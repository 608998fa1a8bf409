package signature

import (
	"context"
	"fmt"
	"math/big"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/ports"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// RawMessageHash is the EIP-191 hash of message.
func RawMessageHash(message string) common.Hash {
	return common.BytesToHash(accounts.TextHash([]byte(message)))
}

// SafeMessageHash wraps raw in the Safe's EIP-712 SafeMessage envelope for
// the given chain and account.
func SafeMessageHash(raw common.Hash, chainID *big.Int, safe common.Address) (common.Hash, error) {
	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"SafeMessage": {
				{Name: "message", Type: "bytes"},
			},
		},
		PrimaryType: "SafeMessage",
		Domain: apitypes.TypedDataDomain{
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: safe.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"message": raw.Bytes(),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash safe message: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// VerifySafe asks the Safe account to validate a contract signature.
//
// Deployed Safe versions disagree on whether isValidSignature expects the raw
// message hash or the SafeMessage hash, so both are tried. When neither
// validates, the error tells apart a signer that is not an owner, a signer
// contract that is not deployed yet, and a signature that is simply wrong.
func VerifySafe(ctx context.Context, chain ports.SafeChain, in ports.SignatureInput) error {
	safe, err := parseAddress(in.Account)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	signer, err := parseAddress(in.Signer)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	sig, err := hexutil.Decode(in.Signature)
	if err != nil || len(sig) == 0 {
		return fmt.Errorf("invalid passkey signature format: %w", core.ErrInvalidSignature)
	}

	chainID, err := chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}

	raw := RawMessageHash(in.Message)
	wrapped, err := SafeMessageHash(raw, chainID, safe)
	if err != nil {
		return err
	}

	for _, hash := range []common.Hash{raw, wrapped} {
		ok, err := chain.IsValidSignature(ctx, safe, hash, sig)
		if err != nil {
			return fmt.Errorf("failed to validate contract signature: %w", err)
		}
		if ok {
			return nil
		}
	}

	owners, err := chain.Owners(ctx, safe)
	if err != nil {
		return fmt.Errorf("failed to read safe owners: %w", err)
	}
	if !containsAddress(owners, signer) {
		return fmt.Errorf("passkey owner address is not an owner on this Safe account: %w", core.ErrNotOwner)
	}

	code, err := chain.CodeAt(ctx, signer)
	if err != nil {
		return fmt.Errorf("failed to read signer code: %w", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("passkey signer contract %s: %w", signer.Hex(), core.ErrSignerNotDeployed)
	}

	return fmt.Errorf("passkey signature could not be validated, approve with the passkey that created this account: %w",
		core.ErrInvalidSignature)
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
