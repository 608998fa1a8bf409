package deployer

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/ports"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Safe v1.4.1 deployments on Sepolia
var (
	DefaultProxyFactory    = common.HexToAddress("0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67")
	DefaultSingleton       = common.HexToAddress("0x29fcB43b46531BcA003ddC8FCB67FFE91900C762")
	DefaultFallbackHandler = common.HexToAddress("0xfd0732Dc9E303f09fCEf3a7388Ad10A83459Ec99")
)

const factoryABIJSON = `[
	{"type":"function","name":"createProxyWithNonce","stateMutability":"nonpayable","inputs":[{"name":"_singleton","type":"address"},{"name":"initializer","type":"bytes"},{"name":"saltNonce","type":"uint256"}],"outputs":[{"name":"proxy","type":"address"}]},
	{"type":"event","name":"ProxyCreation","anonymous":false,"inputs":[{"name":"proxy","type":"address","indexed":true},{"name":"singleton","type":"address","indexed":false}]}
]`

const singletonABIJSON = `[
	{"type":"function","name":"setup","stateMutability":"nonpayable","inputs":[{"name":"_owners","type":"address[]"},{"name":"_threshold","type":"uint256"},{"name":"to","type":"address"},{"name":"data","type":"bytes"},{"name":"fallbackHandler","type":"address"},{"name":"paymentToken","type":"address"},{"name":"payment","type":"uint256"},{"name":"paymentReceiver","type":"address"}],"outputs":[]}
]`

var (
	factoryABI   = mustParseABI(factoryABIJSON)
	singletonABI = mustParseABI(singletonABIJSON)

	errNoProxyCreation = errors.New("deployment receipt has no ProxyCreation event")
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RelayBackend is what the relayer needs from the RPC client
type RelayBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// RelayConfig holds the Safe contracts and the key paying for deployments
type RelayConfig struct {
	ChainID         *big.Int
	RelayerKey      *ecdsa.PrivateKey
	ProxyFactory    common.Address
	Singleton       common.Address
	FallbackHandler common.Address
}

// RelayDeployer deploys a 1-of-1 Safe owned by the signer, paid for by a server side relayer key
type RelayDeployer struct {
	backend RelayBackend
	cfg     RelayConfig
	factory *bind.BoundContract
	logger  *zap.Logger
}

var _ ports.Deployer = (*RelayDeployer)(nil)

// NewRelayDeployer validates cfg and fills in the default Safe contracts
func NewRelayDeployer(backend RelayBackend, cfg RelayConfig, logger *zap.Logger) (*RelayDeployer, error) {
	if cfg.RelayerKey == nil {
		return nil, errors.New("relayer private key is required for relay deployment")
	}
	if cfg.ChainID == nil {
		return nil, errors.New("chain id is required for relay deployment")
	}
	if cfg.ProxyFactory == (common.Address{}) {
		cfg.ProxyFactory = DefaultProxyFactory
	}
	if cfg.Singleton == (common.Address{}) {
		cfg.Singleton = DefaultSingleton
	}
	if cfg.FallbackHandler == (common.Address{}) {
		cfg.FallbackHandler = DefaultFallbackHandler
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RelayDeployer{
		backend: backend,
		cfg:     cfg,
		factory: bind.NewBoundContract(cfg.ProxyFactory, factoryABI, backend, backend, backend),
		logger:  logger,
	}, nil
}

// Deploy submits createProxyWithNonce and waits until it is mined
func (d *RelayDeployer) Deploy(ctx context.Context, req core.DeploymentRequest) (core.DeploymentReceipt, error) {
	if !common.IsHexAddress(req.SignerAddress) {
		return core.DeploymentReceipt{}, fmt.Errorf("invalid owner address %q", req.SignerAddress)
	}
	owner := common.HexToAddress(req.SignerAddress)

	initializer, err := SetupCalldata(owner, d.cfg.FallbackHandler)
	if err != nil {
		return core.DeploymentReceipt{}, err
	}
	saltNonce, err := randomSaltNonce()
	if err != nil {
		return core.DeploymentReceipt{}, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(d.cfg.RelayerKey, d.cfg.ChainID)
	if err != nil {
		return core.DeploymentReceipt{}, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := d.factory.Transact(opts, "createProxyWithNonce", d.cfg.Singleton, initializer, saltNonce)
	if err != nil {
		return core.DeploymentReceipt{}, fmt.Errorf("failed to submit deployment: %w", err)
	}
	d.logger.Info("safe deployment submitted",
		zap.String("owner", owner.Hex()),
		zap.String("tx", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, d.backend, tx)
	if err != nil {
		return core.DeploymentReceipt{}, fmt.Errorf("failed waiting for deployment: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return core.DeploymentReceipt{}, errors.New("safe deployment transaction failed")
	}

	proxy, err := ProxyFromReceipt(receipt, d.cfg.ProxyFactory)
	if err != nil {
		return core.DeploymentReceipt{}, err
	}

	// modules are configured in the same transaction
	return core.DeploymentReceipt{
		AccountAddress:   proxy.Hex(),
		DeploymentTxHash: tx.Hash().Hex(),
		ModuleTxHash:     tx.Hash().Hex(),
		Network:          Network,
	}, nil
}

// SetupCalldata encodes Safe.setup for a single owner with threshold one
func SetupCalldata(owner, fallbackHandler common.Address) ([]byte, error) {
	data, err := singletonABI.Pack("setup",
		[]common.Address{owner},
		big.NewInt(1),
		common.Address{},
		[]byte{},
		fallbackHandler,
		common.Address{},
		big.NewInt(0),
		common.Address{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode safe setup: %w", err)
	}
	return data, nil
}

// ProxyFromReceipt finds the new proxy address in the factory's ProxyCreation event
func ProxyFromReceipt(receipt *types.Receipt, factory common.Address) (common.Address, error) {
	eventID := factoryABI.Events["ProxyCreation"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != factory || len(lg.Topics) < 2 || lg.Topics[0] != eventID {
			continue
		}
		return common.BytesToAddress(lg.Topics[1].Bytes()), nil
	}
	return common.Address{}, errNoProxyCreation
}

func randomSaltNonce() (*big.Int, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt nonce: %w", err)
	}
	return n, nil
}
