// Package chain reads Safe account state from an Ethereum JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/ports"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// SepoliaChainID is the only network Safe accounts are deployed on
const SepoliaChainID = 11155111

// DefaultRPCURL is used when no endpoint is configured
const DefaultRPCURL = "https://ethereum-sepolia-rpc.publicnode.com"

const safeABIJSON = `[
	{"type":"function","name":"getOwners","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"isValidSignature","stateMutability":"view","inputs":[{"name":"_dataHash","type":"bytes32"},{"name":"_signature","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}]}
]`

const legacyABIJSON = `[
	{"type":"function","name":"isValidSignature","stateMutability":"view","inputs":[{"name":"_data","type":"bytes"},{"name":"_signature","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}]}
]`

var (
	// EIP-1271 magic value for isValidSignature(bytes32,bytes)
	magicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}
	// magic value of the pre-1271 isValidSignature(bytes,bytes)
	legacyMagicValue = [4]byte{0x20, 0xc1, 0x3b, 0x0b}

	safeABI   = mustParseABI(safeABIJSON)
	legacyABI = mustParseABI(legacyABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Backend is the subset of ethclient.Client the Safe client needs
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SafeClient implements ports.SafeChain on top of a JSON-RPC backend
type SafeClient struct {
	backend Backend
}

var _ ports.SafeChain = (*SafeClient)(nil)

// NewSafeClient wraps an already connected backend
func NewSafeClient(backend Backend) *SafeClient {
	return &SafeClient{backend: backend}
}

// Dial connects to rpcURL and refuses endpoints that are not on wantChainID.
func Dial(ctx context.Context, rpcURL string, wantChainID int64) (*SafeClient, *ethclient.Client, error) {
	if rpcURL == "" {
		rpcURL = DefaultRPCURL
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	safe := NewSafeClient(client)
	if err := safe.EnsureChain(ctx, wantChainID); err != nil {
		client.Close()
		return nil, nil, err
	}
	return safe, client, nil
}

// EnsureChain returns core.ErrUnsupportedChain when the backend is on another network
func (c *SafeClient) EnsureChain(ctx context.Context, want int64) error {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if id.Cmp(big.NewInt(want)) != 0 {
		return fmt.Errorf("rpc is on chain %s, expected %d: %w", id, want, core.ErrUnsupportedChain)
	}
	return nil
}

// ChainID returns the backend's chain id
func (c *SafeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.backend.ChainID(ctx)
}

// Owners returns the Safe's current owner list. An address without code
// answers with empty output and has no owners.
func (c *SafeClient) Owners(ctx context.Context, safe common.Address) ([]common.Address, error) {
	data, err := safeABI.Pack("getOwners")
	if err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &safe, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getOwners call failed: %w", err)
	}
	if len(out) == 0 {
		return []common.Address{}, nil
	}
	values, err := safeABI.Unpack("getOwners", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode owners: %w", err)
	}
	if len(values) != 1 {
		return nil, errors.New("unexpected getOwners result")
	}
	owners, ok := values[0].([]common.Address)
	if !ok {
		return nil, errors.New("unexpected getOwners result type")
	}
	return owners, nil
}

// IsValidSignature asks the Safe to validate sig over hash. The bytes32 form is
// tried first, then the legacy bytes form. Reverting calls count as invalid.
func (c *SafeClient) IsValidSignature(ctx context.Context, safe common.Address, hash common.Hash, sig []byte) (bool, error) {
	data, err := safeABI.Pack("isValidSignature", hash, sig)
	if err != nil {
		return false, err
	}
	if c.callMagic(ctx, safe, safeABI, data) == magicValue {
		return true, nil
	}

	data, err = legacyABI.Pack("isValidSignature", hash.Bytes(), sig)
	if err != nil {
		return false, err
	}
	return c.callMagic(ctx, safe, legacyABI, data) == legacyMagicValue, nil
}

func (c *SafeClient) callMagic(ctx context.Context, safe common.Address, contract abi.ABI, data []byte) [4]byte {
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &safe, Data: data}, nil)
	if err != nil || len(out) == 0 {
		return [4]byte{}
	}
	values, err := contract.Unpack("isValidSignature", out)
	if err != nil || len(values) != 1 {
		return [4]byte{}
	}
	magic, _ := values[0].([4]byte)
	return magic
}

// CodeAt returns the contract code deployed at addr
func (c *SafeClient) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	return c.backend.CodeAt(ctx, addr, nil)
}

// TransactionSucceeded reports whether tx was mined with a success status.
// Unknown transactions report false without error.
func (c *SafeClient) TransactionSucceeded(ctx context.Context, tx common.Hash) (bool, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, tx)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch receipt: %w", err)
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}
