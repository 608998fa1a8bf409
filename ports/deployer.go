package ports

import (
	"context"

	"github.com/albert-vybestein/neobank/core"
)

// Deployer creates a Safe account for a signer. The mechanics are opaque to callers.
type Deployer interface {
	Deploy(ctx context.Context, req core.DeploymentRequest) (core.DeploymentReceipt, error)
}
