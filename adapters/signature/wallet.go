package signature

import (
	"fmt"

	"github.com/albert-vybestein/neobank/core"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifyWallet checks an EIP-191 personal_sign signature of message by signer.
func VerifyWallet(message, signature, signer string) error {
	expected, err := parseAddress(signer)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("invalid wallet signature format: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	// wallets emit v as 27/28, recovery wants 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", core.ErrInvalidSignature)
	}
	if crypto.PubkeyToAddress(*pub) != expected {
		return core.ErrInvalidSignature
	}
	return nil
}
