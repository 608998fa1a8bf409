package service

import (
	"context"
	"testing"
	"time"

	"github.com/albert-vybestein/neobank/adapters/store"
	"github.com/albert-vybestein/neobank/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	signerA  = "0x00000000000000000000000000000000000000a1"
	accountA = "0x00000000000000000000000000000000000000f1"
	signerB  = "0x00000000000000000000000000000000000000a2"
	accountB = "0x00000000000000000000000000000000000000f2"
)

func TestSessions_ValidateUntilExpiry(t *testing.T) {
	f := newMockFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Sessions.Issue(ctx, signerA, accountA)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), issued.ExpiresAt)

	got, err := f.svc.Sessions.Validate(ctx, issued.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, signerA, got.SignerAddress)
	assert.Equal(t, accountA, got.AccountAddress)

	f.clock.Advance(7*24*time.Hour - time.Millisecond)
	got, err = f.svc.Sessions.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.NotNil(t, got)

	f.clock.Advance(time.Millisecond)
	got, err = f.svc.Sessions.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, err := store.NewCollection[core.Session](f.store, store.SessionsCollection).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored, "expired rows are pruned on lookup")
}

func TestSessions_NoPartialMatch(t *testing.T) {
	f := newMockFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Sessions.Issue(ctx, signerA, accountA)
	require.NoError(t, err)

	for i := range issued.Token {
		mutated := []byte(issued.Token)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		got, err := f.svc.Sessions.Validate(ctx, string(mutated))
		require.NoError(t, err)
		require.Nil(t, got, "position %d", i)
	}

	for _, token := range []string{"", issued.Token[:63], issued.Token + "0"} {
		got, err := f.svc.Sessions.Validate(ctx, token)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestSessions_RawTokenNeverStored(t *testing.T) {
	f := newMockFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Sessions.Issue(ctx, signerA, accountA)
	require.NoError(t, err)

	raw, err := f.store.Read(ctx, store.SessionsCollection)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), issued.Token)
	assert.Contains(t, string(raw), hashToken(issued.Token))
}

func TestSessions_RevokeIsIdempotent(t *testing.T) {
	f := newMockFixture(t)
	ctx := context.Background()

	first, err := f.svc.Sessions.Issue(ctx, signerA, accountA)
	require.NoError(t, err)
	other, err := f.svc.Sessions.Issue(ctx, signerB, accountB)
	require.NoError(t, err)

	require.NoError(t, f.svc.Sessions.Revoke(ctx, first.Token))
	require.NoError(t, f.svc.Sessions.Revoke(ctx, first.Token))
	require.NoError(t, f.svc.Sessions.Revoke(ctx, "unknown"))
	require.NoError(t, f.svc.Sessions.Revoke(ctx, ""))

	got, err := f.svc.Sessions.Validate(ctx, first.Token)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.svc.Sessions.Validate(ctx, other.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, signerB, got.SignerAddress)
}

func TestSessions_LegacyRowMigratedOnLookup(t *testing.T) {
	f := newMockFixture(t)
	ctx := context.Background()
	sessions := store.NewCollection[core.Session](f.store, store.SessionsCollection)

	legacyToken := "legacy-token-value"
	require.NoError(t, sessions.Replace(ctx, []core.Session{{
		Token:          legacyToken,
		SignerAddress:  signerA,
		AccountAddress: accountA,
		CreatedAt:      f.clock.Now(),
		ExpiresAt:      f.clock.Now().Add(time.Hour),
	}}))

	got, err := f.svc.Sessions.Validate(ctx, "legacy-token-valuf")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.svc.Sessions.Validate(ctx, legacyToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, accountA, got.AccountAddress)

	stored, err := sessions.All(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Empty(t, stored[0].Token)
	assert.Equal(t, hashToken(legacyToken), stored[0].TokenHash)

	got, err = f.svc.Sessions.Validate(ctx, legacyToken)
	require.NoError(t, err)
	assert.NotNil(t, got, "migrated row still validates")
}

func TestSessions_RevokeLegacyRow(t *testing.T) {
	f := newMockFixture(t)
	ctx := context.Background()
	sessions := store.NewCollection[core.Session](f.store, store.SessionsCollection)

	require.NoError(t, sessions.Replace(ctx, []core.Session{{
		Token:          "legacy",
		SignerAddress:  signerA,
		AccountAddress: accountA,
		ExpiresAt:      f.clock.Now().Add(time.Hour),
	}}))
	require.NoError(t, f.svc.Sessions.Revoke(ctx, "legacy"))

	stored, err := sessions.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSessions_IssueForOwner(t *testing.T) {
	f := newMockFixture(t)
	ctx := context.Background()
	owner := newSigner(t)
	account := f.deploy(t, owner)

	_, err := f.svc.Sessions.IssueForOwner(ctx, signerB, account)
	assert.ErrorIs(t, err, core.ErrNotOwner)

	issued, err := f.svc.Sessions.IssueForOwner(ctx, owner.address, account)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)
}

func TestAuthService_MockSession(t *testing.T) {
	ctx := context.Background()

	mock := newMockFixture(t)
	owner := newSigner(t)
	account := mock.deploy(t, owner)
	_, err := mock.svc.MockSession(ctx, owner.address, account)
	assert.NoError(t, err)

	live := newRealFixture(t)
	live.chain.setOwners(accountA, signerA)
	_, err = live.svc.MockSession(ctx, signerA, accountA)
	assert.ErrorIs(t, err, core.ErrMockSessionDisabled)
}
