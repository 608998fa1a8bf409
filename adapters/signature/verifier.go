// Package signature verifies login challenge signatures from externally owned
// keys and from Safe smart accounts.
package signature

import (
	"context"
	"fmt"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/ports"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Verifier dispatches to the verification strategy named by the auth method
type Verifier struct {
	chain  ports.SafeChain
	logger *zap.Logger
}

// NewVerifier creates a verifier. chain may be nil, in which case contract
// signatures cannot be checked and passkey verification is skipped.
func NewVerifier(chain ports.SafeChain, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{chain: chain, logger: logger}
}

var _ ports.SignatureVerifier = (*Verifier)(nil)

// Verify checks in.Signature over in.Message using method
func (v *Verifier) Verify(ctx context.Context, method core.AuthMethod, in ports.SignatureInput) error {
	switch method {
	case core.AuthMethodWallet, "":
		return VerifyWallet(in.Message, in.Signature, in.Signer)
	case core.AuthMethodPasskey:
		if v.chain == nil {
			v.logger.Debug("contract signature check skipped without chain access",
				zap.String("account", in.Account))
			return nil
		}
		return VerifySafe(ctx, v.chain, in)
	default:
		return fmt.Errorf("%w: %q", core.ErrInvalidAuthMethod, method)
	}
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
