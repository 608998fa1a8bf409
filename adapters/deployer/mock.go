// Package deployer creates Safe accounts, either for real through a relayer
// or as deterministic placeholders for local development.
package deployer

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/ports"
)

// Network is the label recorded for every deployment
const Network = "sepolia"

// MockDeployer fabricates account addresses and transaction hashes without touching a chain
type MockDeployer struct {
	now func() time.Time
}

var _ ports.Deployer = (*MockDeployer)(nil)

// NewMockDeployer creates a mock deployer
func NewMockDeployer() *MockDeployer {
	return &MockDeployer{now: time.Now}
}

// Deploy derives the account address and both transaction hashes from fresh entropy
func (d *MockDeployer) Deploy(_ context.Context, req core.DeploymentRequest) (core.DeploymentReceipt, error) {
	salt := make([]byte, 4)
	if _, err := rand.Read(salt); err != nil {
		return core.DeploymentReceipt{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	entropy := fmt.Sprintf("%s:%s:%d:%s", req.SignerAddress, req.AccountName, d.now().UnixMilli(), hex.EncodeToString(salt))

	return core.DeploymentReceipt{
		AccountAddress:   "0x" + digest("safe:" + entropy)[:40],
		DeploymentTxHash: "0x" + digest("deploy:"+entropy),
		ModuleTxHash:     "0x" + digest("module:"+entropy),
		Network:          Network,
	}, nil
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ClientDeployer refuses server side deployment. Accounts are deployed by the
// browser through a bundler and registered afterwards.
type ClientDeployer struct{}

var _ ports.Deployer = ClientDeployer{}

// Deploy always fails with core.ErrClientDeploymentRequired
func (ClientDeployer) Deploy(context.Context, core.DeploymentRequest) (core.DeploymentReceipt, error) {
	return core.DeploymentReceipt{}, core.ErrClientDeploymentRequired
}
