package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/albert-vybestein/neobank/core"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	chainID  *big.Int
	owners   []common.Address
	magic    [4]byte
	legacy   [4]byte
	revert   bool
	noCode   bool
	code     []byte
	receipts map[common.Hash]*types.Receipt
	calls    []string
}

func isCall(data []byte, contract abi.ABI, method string) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], contract.Methods[method].ID)
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	switch {
	case isCall(msg.Data, safeABI, "getOwners"):
		f.calls = append(f.calls, "getOwners")
		if f.noCode {
			return []byte{}, nil
		}
		return safeABI.Methods["getOwners"].Outputs.Pack(f.owners)
	case isCall(msg.Data, safeABI, "isValidSignature"):
		f.calls = append(f.calls, "isValidSignature(bytes32,bytes)")
		if f.revert {
			return nil, errors.New("execution reverted")
		}
		return safeABI.Methods["isValidSignature"].Outputs.Pack(f.magic)
	case isCall(msg.Data, legacyABI, "isValidSignature"):
		f.calls = append(f.calls, "isValidSignature(bytes,bytes)")
		return legacyABI.Methods["isValidSignature"].Outputs.Pack(f.legacy)
	}
	return nil, errors.New("unknown method")
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return f.code, nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, tx common.Hash) (*types.Receipt, error) {
	receipt, ok := f.receipts[tx]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

var safeAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")

func TestSafeClient_Owners(t *testing.T) {
	owners := []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
	client := NewSafeClient(&fakeBackend{owners: owners})

	got, err := client.Owners(context.Background(), safeAddr)
	require.NoError(t, err)
	assert.Equal(t, owners, got)
}

func TestSafeClient_OwnersWithoutCode(t *testing.T) {
	client := NewSafeClient(&fakeBackend{noCode: true})

	got, err := client.Owners(context.Background(), safeAddr)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSafeClient_IsValidSignature(t *testing.T) {
	hash := common.HexToHash("0xabcdef")
	sig := []byte{0x01, 0x02}

	t.Run("bytes32 form", func(t *testing.T) {
		backend := &fakeBackend{magic: magicValue}
		ok, err := NewSafeClient(backend).IsValidSignature(context.Background(), safeAddr, hash, sig)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"isValidSignature(bytes32,bytes)"}, backend.calls)
	})

	t.Run("legacy form after revert", func(t *testing.T) {
		backend := &fakeBackend{revert: true, legacy: legacyMagicValue}
		ok, err := NewSafeClient(backend).IsValidSignature(context.Background(), safeAddr, hash, sig)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"isValidSignature(bytes32,bytes)", "isValidSignature(bytes,bytes)"}, backend.calls)
	})

	t.Run("wrong magic", func(t *testing.T) {
		backend := &fakeBackend{magic: [4]byte{0xff}, legacy: [4]byte{0xee}}
		ok, err := NewSafeClient(backend).IsValidSignature(context.Background(), safeAddr, hash, sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSafeClient_TransactionSucceeded(t *testing.T) {
	okTx := common.HexToHash("0x01")
	failedTx := common.HexToHash("0x02")
	client := NewSafeClient(&fakeBackend{receipts: map[common.Hash]*types.Receipt{
		okTx:     {Status: types.ReceiptStatusSuccessful},
		failedTx: {Status: types.ReceiptStatusFailed},
	}})

	ok, err := client.TransactionSucceeded(context.Background(), okTx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.TransactionSucceeded(context.Background(), failedTx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = client.TransactionSucceeded(context.Background(), common.HexToHash("0x03"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSafeClient_EnsureChain(t *testing.T) {
	client := NewSafeClient(&fakeBackend{chainID: big.NewInt(SepoliaChainID)})
	assert.NoError(t, client.EnsureChain(context.Background(), SepoliaChainID))

	mainnet := NewSafeClient(&fakeBackend{chainID: big.NewInt(1)})
	assert.ErrorIs(t, mainnet.EnsureChain(context.Background(), SepoliaChainID), core.ErrUnsupportedChain)
}

func TestSafeClient_CodeAt(t *testing.T) {
	client := NewSafeClient(&fakeBackend{code: []byte{0x60, 0x80}})
	code, err := client.CodeAt(context.Background(), safeAddr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)
}
