package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/albert-vybestein/neobank/adapters/store"
	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/internal/obs"
	"github.com/albert-vybestein/neobank/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry is the append-only log of account deployments and the authority on
// who owns which account.
type Registry struct {
	deployments *store.Collection[core.Deployment]
	mode        core.DeployMode
	chain       ports.SafeChain
	deployer    ports.Deployer
	events      ports.EventPublisher
	metrics     *obs.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

var _ ports.OwnershipChecker = (*Registry)(nil)

// FindLatestBySigner returns the most recently created deployment for signer,
// or nil when there is none.
func (r *Registry) FindLatestBySigner(ctx context.Context, signer string) (*core.Deployment, error) {
	records, err := r.deployments.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployments: %w", err)
	}

	var latest *core.Deployment
	for i := range records {
		if !strings.EqualFold(records[i].SignerAddress, signer) {
			continue
		}
		// later entries win ties
		if latest == nil || !records[i].CreatedAt.Before(latest.CreatedAt) {
			latest = &records[i]
		}
	}
	return latest, nil
}

// IsOwner answers from the deployment log in mock mode and from the Safe's
// live owner list in real mode.
func (r *Registry) IsOwner(ctx context.Context, signer, account string) (bool, error) {
	if r.mode == core.DeployModeMock {
		records, err := r.deployments.All(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to read deployments: %w", err)
		}
		for _, rec := range records {
			if rec.OwnedBy(signer, account) {
				return true, nil
			}
		}
		return false, nil
	}

	if r.chain == nil {
		return false, core.ErrChainUnavailable
	}
	if !common.IsHexAddress(signer) || !common.IsHexAddress(account) {
		return false, nil
	}
	owners, err := r.chain.Owners(ctx, common.HexToAddress(account))
	if err != nil {
		return false, fmt.Errorf("failed to read safe owners: %w", err)
	}
	want := common.HexToAddress(signer)
	for _, owner := range owners {
		if owner == want {
			return true, nil
		}
	}
	return false, nil
}

// Deploy creates an account for the signer through the configured deployer
// and records it.
func (r *Registry) Deploy(ctx context.Context, req core.DeploymentRequest) (core.DeploymentResult, error) {
	receipt, err := r.deployer.Deploy(ctx, req)
	if err != nil {
		return core.DeploymentResult{}, err
	}

	return r.persist(ctx, core.Deployment{
		SignerAddress:    req.SignerAddress,
		AccountAddress:   receipt.AccountAddress,
		DeploymentTxHash: receipt.DeploymentTxHash,
		ModuleTxHash:     receipt.ModuleTxHash,
		Network:          receipt.Network,
		Mode:             r.mode,
		AccountConfig:    req.AccountConfig,
	})
}

// Register records a deployment the client executed itself. In real mode the
// claim is only trusted after the signer is confirmed as an owner and both
// transactions are confirmed successful on-chain. The client's own mode claim
// is ignored.
func (r *Registry) Register(ctx context.Context, req core.RegisterRequest) (core.DeploymentResult, error) {
	record := core.Deployment{
		SignerAddress:    req.SignerAddress,
		AccountAddress:   req.AccountAddress,
		DeploymentTxHash: req.DeploymentTxHash,
		ModuleTxHash:     req.ModuleTxHash,
		Network:          req.Network,
		Mode:             core.DeployModeMock,
		AccountConfig:    req.AccountConfig,
	}
	if r.mode == core.DeployModeMock {
		return r.persist(ctx, record)
	}

	if req.Mode == core.DeployModeMock {
		r.logger.Warn("ignoring mock registration claim in real mode",
			zap.String("signer", req.SignerAddress),
			zap.String("account", req.AccountAddress))
	}

	owner, err := r.IsOwner(ctx, req.SignerAddress, req.AccountAddress)
	if err != nil {
		return core.DeploymentResult{}, err
	}
	if !owner {
		return core.DeploymentResult{}, fmt.Errorf("owner verification failed: %w", core.ErrNotOwner)
	}

	if err := r.requireSuccess(ctx, req.DeploymentTxHash, "deployment"); err != nil {
		return core.DeploymentResult{}, err
	}
	if !strings.EqualFold(req.ModuleTxHash, req.DeploymentTxHash) {
		if err := r.requireSuccess(ctx, req.ModuleTxHash, "module configuration"); err != nil {
			return core.DeploymentResult{}, err
		}
	}

	record.Mode = core.DeployModeReal
	return r.persist(ctx, record)
}

func (r *Registry) requireSuccess(ctx context.Context, txHash, what string) error {
	ok, err := r.chain.TransactionSucceeded(ctx, common.HexToHash(txHash))
	if err != nil {
		r.logger.Warn("receipt lookup failed", zap.String("tx", txHash), zap.Error(err))
		return fmt.Errorf("%s transaction %s: %w", what, txHash, core.ErrDeploymentUnverified)
	}
	if !ok {
		return fmt.Errorf("%s transaction %s: %w", what, txHash, core.ErrDeploymentUnverified)
	}
	return nil
}

func (r *Registry) persist(ctx context.Context, record core.Deployment) (core.DeploymentResult, error) {
	record.ID = uuid.NewString()
	record.CreatedAt = r.now().UTC()

	if err := r.deployments.Append(ctx, record); err != nil {
		return core.DeploymentResult{}, fmt.Errorf("failed to persist deployment: %w", err)
	}

	r.metrics.DeploymentRecorded(string(record.Mode))
	r.logger.Info("deployment recorded",
		zap.String("signer", record.SignerAddress),
		zap.String("account", record.AccountAddress),
		zap.String("mode", string(record.Mode)))
	if err := r.events.PublishDeploymentRecorded(ctx, record.SignerAddress, record.AccountAddress, string(record.Mode)); err != nil {
		r.logger.Warn("failed to publish deployment event", zap.Error(err))
	}

	return record.Result(), nil
}
