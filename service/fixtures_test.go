package service

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/albert-vybestein/neobank/adapters/deployer"
	"github.com/albert-vybestein/neobank/adapters/signature"
	"github.com/albert-vybestein/neobank/adapters/store"
	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/internal/retry"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeChain is an in-memory Safe world: owner lists and receipts
type fakeChain struct {
	mu          sync.Mutex
	owners      map[common.Address][]common.Address
	receipts    map[common.Hash]bool
	ownersCalls int
	// ownersAfter hides owners until Owners has been called this many times
	ownersAfter int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		owners:   map[common.Address][]common.Address{},
		receipts: map[common.Hash]bool{},
	}
}

func (f *fakeChain) setOwners(account string, owners ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := make([]common.Address, 0, len(owners))
	for _, o := range owners {
		list = append(list, common.HexToAddress(o))
	}
	f.owners[common.HexToAddress(account)] = list
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(11155111), nil }

func (f *fakeChain) Owners(_ context.Context, safe common.Address) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ownersCalls++
	if f.ownersCalls <= f.ownersAfter {
		return nil, nil
	}
	return f.owners[safe], nil
}

func (f *fakeChain) IsValidSignature(context.Context, common.Address, common.Hash, []byte) (bool, error) {
	return false, nil
}

func (f *fakeChain) CodeAt(context.Context, common.Address) ([]byte, error) { return nil, nil }

func (f *fakeChain) TransactionSucceeded(_ context.Context, tx common.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[tx], nil
}

type signer struct {
	key     *ecdsa.PrivateKey
	address string
}

func newSigner(t *testing.T) signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (s signer) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

type fixture struct {
	svc   *AuthService
	store *store.MemoryStore
	clock *fakeClock
	chain *fakeChain
}

func newMockFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixture(t, core.DeployModeMock, nil)
}

func newRealFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixture(t, core.DeployModeReal, newFakeChain())
}

func newFixture(t *testing.T, mode core.DeployMode, chain *fakeChain) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemoryStore(),
		clock: newFakeClock(),
		chain: chain,
	}
	opts := Options{
		Store:    f.store,
		Mode:     mode,
		Deployer: deployer.NewMockDeployer(),
		Verifier: signature.NewVerifier(nil, nil),
		Login: LoginConfig{
			IdentityAttempts: 8,
			IdentityDelay:    500 * time.Millisecond,
			OwnerAttempts:    10,
			OwnerDelay:       1200 * time.Millisecond,
			Sleep:            retry.NoSleep,
		},
		Now: f.clock.Now,
	}
	if chain != nil {
		opts.Chain = chain
		opts.Verifier = signature.NewVerifier(chain, nil)
	}
	f.svc = NewAuthService(opts)
	return f
}

// deploy records a mock deployment for s and returns the account address
func (f *fixture) deploy(t *testing.T, s signer) string {
	t.Helper()
	res, err := f.svc.Registry.Deploy(context.Background(), core.DeploymentRequest{
		SignerAddress: s.address,
		AccountConfig: core.AccountConfig{AccountType: "personal", BaseCurrency: "EUR", AccountName: "Main"},
	})
	require.NoError(t, err)
	return res.AccountAddress
}
